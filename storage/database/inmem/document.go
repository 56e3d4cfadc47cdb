package inmemdb

import (
	"context"
	"sort"

	"github.com/trezcool/edulens/core/document"
	"github.com/trezcool/edulens/core/resume"
)

type documentRepository struct {
	db *DB
}

var _ document.Repository = (*documentRepository)(nil) // interface compliance check

func NewDocumentRepository(db *DB) *documentRepository {
	return &documentRepository{db: db}
}

func (repo *documentRepository) CreateDocument(_ context.Context, doc document.Document) (document.Document, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	doc.ID = newID()
	stored := cloneDocument(doc)
	repo.db.documents[doc.ID] = &stored
	return doc, nil
}

func (repo *documentRepository) GetDocument(_ context.Context, id string) (document.Document, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if doc, ok := repo.db.documents[id]; ok {
		return cloneDocument(*doc), nil
	}
	return document.Document{}, document.ErrNotFound
}

func (repo *documentRepository) QueryDocuments(_ context.Context, filter document.QueryFilter) ([]document.Document, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	docs := make([]document.Document, 0)
	for _, doc := range repo.db.documents {
		if filter.UserID != "" && doc.UserID != filter.UserID {
			continue
		}
		if filter.Kind != "" && doc.Kind != filter.Kind {
			continue
		}
		if filter.Status != "" && doc.Status != filter.Status {
			continue
		}
		docs = append(docs, cloneDocument(*doc))
	}
	sort.SliceStable(docs, func(i, j int) bool { return docs[i].UpdatedAt.After(docs[j].UpdatedAt) })
	return docs, nil
}

func (repo *documentRepository) UpdateDocument(_ context.Context, doc document.Document) (document.Document, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.documents[doc.ID]; !ok {
		return document.Document{}, document.ErrNotFound
	}
	stored := cloneDocument(doc)
	repo.db.documents[doc.ID] = &stored
	return doc, nil
}

func (repo *documentRepository) DeleteDocument(_ context.Context, id string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.documents[id]; !ok {
		return document.ErrNotFound
	}
	delete(repo.db.documents, id)
	return nil
}

func cloneDocument(doc document.Document) document.Document {
	metadata := make(map[string]interface{}, len(doc.Metadata))
	for k, v := range doc.Metadata {
		metadata[k] = v
	}
	doc.Metadata = metadata
	return doc
}

type resumeRepository struct {
	db *DB
}

var _ resume.Repository = (*resumeRepository)(nil) // interface compliance check

func NewResumeRepository(db *DB) *resumeRepository {
	return &resumeRepository{db: db}
}

func (repo *resumeRepository) CreateResume(_ context.Context, res resume.Resume) (resume.Resume, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	res.ID = newID()
	stored := cloneResume(res)
	repo.db.resumes[res.ID] = &stored
	return res, nil
}

func (repo *resumeRepository) GetResume(_ context.Context, id string) (resume.Resume, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if res, ok := repo.db.resumes[id]; ok {
		return cloneResume(*res), nil
	}
	return resume.Resume{}, resume.ErrNotFound
}

func (repo *resumeRepository) QueryResumes(_ context.Context, userID string) ([]resume.Resume, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	list := make([]resume.Resume, 0)
	for _, res := range repo.db.resumes {
		if res.UserID == userID {
			list = append(list, cloneResume(*res))
		}
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].UpdatedAt.After(list[j].UpdatedAt) })
	return list, nil
}

func (repo *resumeRepository) UpdateResume(_ context.Context, res resume.Resume) (resume.Resume, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.resumes[res.ID]; !ok {
		return resume.Resume{}, resume.ErrNotFound
	}
	stored := cloneResume(res)
	repo.db.resumes[res.ID] = &stored
	return res, nil
}

func (repo *resumeRepository) DeleteResume(_ context.Context, id string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.resumes[id]; !ok {
		return resume.ErrNotFound
	}
	delete(repo.db.resumes, id)
	return nil
}

func cloneResume(res resume.Resume) resume.Resume {
	res.Education = append([]resume.Education{}, res.Education...)
	res.Experience = append([]resume.Experience{}, res.Experience...)
	res.Skills = append([]string{}, res.Skills...)
	return res
}

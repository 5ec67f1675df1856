package record

import (
	"context"

	"github.com/jomei/notionapi"

	"reportbot/internal/model"
)

type PageCreator interface {
	CreatePage(ctx context.Context, req *notionapi.PageCreateRequest) (string, error)
}

// Store persists finished reports: builds the page payload and submits it in
// a single create call, so partial records are never written.
type Store struct {
	builder *Builder
	pages   PageCreator
}

func NewStore(builder *Builder, pages PageCreator) *Store {
	return &Store{builder: builder, pages: pages}
}

// Create builds and persists the report, returning the new record id.
func (s *Store) Create(ctx context.Context, rep *model.ScratchReport) (string, error) {
	req, err := s.builder.Build(rep)
	if err != nil {
		return "", err
	}
	return s.pages.CreatePage(ctx, req)
}

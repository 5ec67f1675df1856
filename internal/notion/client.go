// Package notion is the document-store persistence collaborator: report page
// creation, preference pages, and status-filtered report queries.
package notion

import (
	"context"
	"errors"
	"fmt"

	"github.com/jomei/notionapi"
	"go.uber.org/zap"

	"reportbot/internal/model"
)

// ErrPersistence marks a failed document-store call.
var ErrPersistence = errors.New("persistence failed")

const (
	propUsername   = "username"
	propLanguage   = "language"
	propTitle      = "id"
	propReportedBy = "reported_by"
	propMarker     = "marker"
	propPolygon    = "polygon"
	propStatus     = "Status"
)

type Client struct {
	api     *notionapi.Client
	prefsDB notionapi.DatabaseID
	log     *zap.Logger
}

func New(apiKey, preferencesDB string, log *zap.Logger) *Client {
	return &Client{
		api:     notionapi.NewClient(notionapi.Token(apiKey)),
		prefsDB: notionapi.DatabaseID(preferencesDB),
		log:     log.Named("notion"),
	}
}

// CreatePage submits a prepared page in a single create call and returns the
// new page id.
func (c *Client) CreatePage(ctx context.Context, req *notionapi.PageCreateRequest) (string, error) {
	page, err := c.api.Page.Create(ctx, req)
	if err != nil {
		return "", fmt.Errorf("%w: create page: %v", ErrPersistence, err)
	}
	return string(page.ID), nil
}

// PreferencesEnabled reports whether a preferences database is configured.
func (c *Client) PreferencesEnabled() bool {
	return c.prefsDB != ""
}

// FindPreference returns the stored preference for a username, or nil when
// none exists. The page id accompanies the preference for updates.
func (c *Client) FindPreference(ctx context.Context, username string) (*model.Preference, string, error) {
	if !c.PreferencesEnabled() {
		return nil, "", nil
	}

	resp, err := c.api.Database.Query(ctx, c.prefsDB, &notionapi.DatabaseQueryRequest{
		Filter: notionapi.PropertyFilter{
			Property: propUsername,
			RichText: &notionapi.TextFilterCondition{Equals: username},
		},
	})
	if err != nil {
		return nil, "", fmt.Errorf("%w: query preferences: %v", ErrPersistence, err)
	}
	if len(resp.Results) == 0 {
		return nil, "", nil
	}

	page := resp.Results[0]
	pref := &model.Preference{Username: username}
	if sel, ok := page.Properties[propLanguage].(*notionapi.SelectProperty); ok {
		pref.Language = sel.Select.Name
	}
	return pref, string(page.ID), nil
}

// UpsertPreference creates or updates the preference page for a username.
func (c *Client) UpsertPreference(ctx context.Context, username, language string) error {
	if !c.PreferencesEnabled() {
		return nil
	}

	properties := notionapi.Properties{
		propUsername: notionapi.TitleProperty{
			Title: []notionapi.RichText{plainText(username)},
		},
		propLanguage: notionapi.SelectProperty{
			Select: notionapi.Option{Name: language},
		},
	}

	_, pageID, err := c.FindPreference(ctx, username)
	if err != nil {
		return err
	}

	if pageID != "" {
		_, err = c.api.Page.Update(ctx, notionapi.PageID(pageID), &notionapi.PageUpdateRequest{
			Properties: properties,
		})
		if err != nil {
			return fmt.Errorf("%w: update preference: %v", ErrPersistence, err)
		}
		return nil
	}

	_, err = c.api.Page.Create(ctx, &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: c.prefsDB,
		},
		Properties: properties,
	})
	if err != nil {
		return fmt.Errorf("%w: create preference: %v", ErrPersistence, err)
	}
	return nil
}

// DeletePreference removes the preference page for a username, if any.
func (c *Client) DeletePreference(ctx context.Context, username string) error {
	if !c.PreferencesEnabled() {
		return nil
	}

	_, pageID, err := c.FindPreference(ctx, username)
	if err != nil {
		return err
	}
	if pageID == "" {
		return nil
	}

	if _, err := c.api.Block.Delete(ctx, notionapi.BlockID(pageID)); err != nil {
		return fmt.Errorf("%w: delete preference: %v", ErrPersistence, err)
	}
	return nil
}

// ReportPage is the subset of a report page the map job reads.
type ReportPage struct {
	ID         string
	Title      string
	ReportedBy string
	Marker     string
	Polygon    string
}

// ReportsByStatus pages through a report database filtered by moderation
// status.
func (c *Client) ReportsByStatus(ctx context.Context, databaseID, status string) ([]ReportPage, error) {
	var (
		reports []ReportPage
		cursor  notionapi.Cursor
	)

	for {
		resp, err := c.api.Database.Query(ctx, notionapi.DatabaseID(databaseID), &notionapi.DatabaseQueryRequest{
			Filter: notionapi.PropertyFilter{
				Property: propStatus,
				Select:   &notionapi.SelectFilterCondition{Equals: status},
			},
			StartCursor: cursor,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: query reports (%s): %v", ErrPersistence, status, err)
		}

		for _, page := range resp.Results {
			reports = append(reports, ReportPage{
				ID:         string(page.ID),
				Title:      titleText(page.Properties[propTitle]),
				ReportedBy: richTextText(page.Properties[propReportedBy]),
				Marker:     richTextText(page.Properties[propMarker]),
				Polygon:    richTextText(page.Properties[propPolygon]),
			})
		}

		if !resp.HasMore {
			return reports, nil
		}
		cursor = resp.NextCursor
	}
}

func plainText(content string) notionapi.RichText {
	return notionapi.RichText{
		Type: notionapi.ObjectTypeText,
		Text: &notionapi.Text{Content: content},
	}
}

func titleText(prop notionapi.Property) string {
	title, ok := prop.(*notionapi.TitleProperty)
	if !ok || len(title.Title) == 0 {
		return ""
	}
	return title.Title[0].PlainText
}

func richTextText(prop notionapi.Property) string {
	rich, ok := prop.(*notionapi.RichTextProperty)
	if !ok || len(rich.RichText) == 0 {
		return ""
	}
	return rich.RichText[0].PlainText
}

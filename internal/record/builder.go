// Package record converts a completed scratch report into the document-store
// page shape used for moderation.
package record

import (
	"fmt"
	"strconv"

	"github.com/jomei/notionapi"

	"reportbot/internal/model"
)

const (
	statusModeration = "Moderation"

	headingDescription = "Report description"
	headingMedia       = "Report Media"
	headingLocation    = "Report Location"
)

// Builder maps actions to destination databases and assembles page-create
// payloads. Pure and deterministic: the same report always yields the same
// payload.
type Builder struct {
	databases map[string]string
}

func NewBuilder(actionDatabases map[string]string) *Builder {
	return &Builder{databases: actionDatabases}
}

// Build assembles the page-create request for a finished report.
func (b *Builder) Build(rep *model.ScratchReport) (*notionapi.PageCreateRequest, error) {
	databaseID, ok := b.databases[rep.Action]
	if !ok {
		return nil, fmt.Errorf("record: no database for action %q", rep.Action)
	}
	if !rep.Location.IsSet() {
		return nil, fmt.Errorf("record: report has no location")
	}

	locationBlock, locationProperty := locationParts(rep.Location)

	properties := notionapi.Properties{
		"Status": notionapi.SelectProperty{
			Select: notionapi.Option{Name: statusModeration},
		},
		"id": notionapi.TitleProperty{
			Title: []notionapi.RichText{text(rep.Description)},
		},
		"reported_by": notionapi.RichTextProperty{
			RichText: []notionapi.RichText{reporterText(rep.Reporter)},
		},
		"Location": locationProperty,
	}
	if coords := rep.Location.Coordinates; coords != nil {
		properties["marker"] = notionapi.RichTextProperty{
			RichText: []notionapi.RichText{
				text(formatCoord(coords.Lat) + ", " + formatCoord(coords.Lon)),
			},
		}
	}

	children := []notionapi.Block{
		heading2(headingDescription),
		paragraph(text(rep.Description)),
		heading2(headingMedia),
	}
	for _, item := range rep.Media {
		children = append(children, mediaBlock(item))
	}
	for _, comment := range rep.Comments {
		children = append(children, paragraph(text(comment)))
	}
	children = append(children, heading2(headingLocation), locationBlock)

	return &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: notionapi.DatabaseID(databaseID),
		},
		Properties: properties,
		Children:   children,
	}, nil
}

// locationParts renders the single location block and the Location property
// for whichever variant is populated.
func locationParts(loc model.Location) (notionapi.Block, notionapi.Property) {
	switch {
	case loc.Coordinates != nil:
		lat := formatCoord(loc.Coordinates.Lat)
		lon := formatCoord(loc.Coordinates.Lon)
		url := mapsSearchURL(lat, lon)
		block := paragraph(linkedText(lat+"-"+lon, url))
		property := notionapi.RichTextProperty{
			RichText: []notionapi.RichText{linkedText("Telegram Location", url)},
		}
		return block, property

	case loc.PhotoURL != "":
		block := externalImage(loc.PhotoURL)
		property := notionapi.RichTextProperty{
			RichText: []notionapi.RichText{text("Image in a page")},
		}
		return block, property

	default:
		block := paragraph(text(loc.Link.RawText))
		property := notionapi.RichTextProperty{
			RichText: []notionapi.RichText{linkedText(loc.Link.Provider.DisplayName(), loc.Link.URL)},
		}
		return block, property
	}
}

func mediaBlock(item model.Media) notionapi.Block {
	if item.Kind == model.MediaVideo {
		return notionapi.VideoBlock{
			BasicBlock: basicBlock(notionapi.BlockTypeVideo),
			Video: notionapi.Video{
				Type:     notionapi.FileTypeExternal,
				External: &notionapi.FileObject{URL: item.URL},
			},
		}
	}
	return externalImage(item.URL)
}

func reporterText(rep model.Reporter) notionapi.RichText {
	if rep.Username == "" {
		return text(rep.FirstName)
	}
	return linkedText(rep.FirstName, "https://t.me/"+rep.Username)
}

func basicBlock(t notionapi.BlockType) notionapi.BasicBlock {
	return notionapi.BasicBlock{Object: notionapi.ObjectTypeBlock, Type: t}
}

func heading2(content string) notionapi.Block {
	return notionapi.Heading2Block{
		BasicBlock: basicBlock(notionapi.BlockTypeHeading2),
		Heading2:   notionapi.Heading{RichText: []notionapi.RichText{text(content)}},
	}
}

func paragraph(rich ...notionapi.RichText) notionapi.Block {
	return notionapi.ParagraphBlock{
		BasicBlock: basicBlock(notionapi.BlockTypeParagraph),
		Paragraph:  notionapi.Paragraph{RichText: rich},
	}
}

func externalImage(url string) notionapi.Block {
	return notionapi.ImageBlock{
		BasicBlock: basicBlock(notionapi.BlockTypeImage),
		Image: notionapi.Image{
			Type:     notionapi.FileTypeExternal,
			External: &notionapi.FileObject{URL: url},
		},
	}
}

func text(content string) notionapi.RichText {
	return notionapi.RichText{
		Type: notionapi.ObjectTypeText,
		Text: &notionapi.Text{Content: content},
	}
}

func linkedText(content, url string) notionapi.RichText {
	return notionapi.RichText{
		Type: notionapi.ObjectTypeText,
		Text: &notionapi.Text{Content: content, Link: &notionapi.Link{Url: url}},
	}
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func mapsSearchURL(lat, lon string) string {
	return "https://www.google.com/maps/search/?api=1&query=" + lat + "," + lon
}

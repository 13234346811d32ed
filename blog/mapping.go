package blog

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/eringen/spacetraveling/prismic"
	"github.com/eringen/spacetraveling/richtext"
)

// MalformedError reports a CMS document that could not be mapped.
type MalformedError struct {
	UID   string
	Field string
	Err   error
}

func (e *MalformedError) Error() string {
	msg := fmt.Sprintf("blog: malformed document %q: field %s", e.UID, e.Field)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *MalformedError) Unwrap() error {
	return e.Err
}

type summaryData struct {
	Title    *string `json:"title"`
	Subtitle string  `json:"subtitle"`
	Author   string  `json:"author"`
}

type detailData struct {
	Title    *string `json:"title"`
	Subtitle string  `json:"subtitle"`
	Author   string  `json:"author"`
	Banner   struct {
		URL string `json:"url"`
		Alt string `json:"alt"`
	} `json:"banner"`
	Content []struct {
		Heading string            `json:"heading"`
		Body    richtext.RichText `json:"body"`
	} `json:"content"`
}

// SummaryFromDocument maps a listing-query document into a PostSummary.
func SummaryFromDocument(doc prismic.Document) (PostSummary, error) {
	if strings.TrimSpace(doc.UID) == "" {
		return PostSummary{}, &MalformedError{UID: doc.ID, Field: "uid"}
	}
	var data summaryData
	if err := decodeData(doc, &data); err != nil {
		return PostSummary{}, err
	}
	if data.Title == nil || strings.TrimSpace(*data.Title) == "" {
		return PostSummary{}, &MalformedError{UID: doc.UID, Field: "title"}
	}
	published, err := prismic.ParseTimestamp(doc.FirstPublicationDate)
	if err != nil {
		return PostSummary{}, &MalformedError{UID: doc.UID, Field: "first_publication_date", Err: err}
	}
	return PostSummary{
		UID:                  doc.UID,
		FirstPublicationDate: published,
		Title:                *data.Title,
		Subtitle:             data.Subtitle,
		Author:               data.Author,
	}, nil
}

// DetailFromDocument maps a single-document lookup into a PostDetail.
// Missing content is treated as an empty post body.
func DetailFromDocument(doc prismic.Document) (PostDetail, error) {
	if strings.TrimSpace(doc.UID) == "" {
		return PostDetail{}, &MalformedError{UID: doc.ID, Field: "uid"}
	}
	var data detailData
	if err := decodeData(doc, &data); err != nil {
		return PostDetail{}, err
	}
	if data.Title == nil || strings.TrimSpace(*data.Title) == "" {
		return PostDetail{}, &MalformedError{UID: doc.UID, Field: "title"}
	}
	first, err := prismic.ParseTimestamp(doc.FirstPublicationDate)
	if err != nil {
		return PostDetail{}, &MalformedError{UID: doc.UID, Field: "first_publication_date", Err: err}
	}
	last, err := prismic.ParseTimestamp(doc.LastPublicationDate)
	if err != nil {
		return PostDetail{}, &MalformedError{UID: doc.UID, Field: "last_publication_date", Err: err}
	}

	sections := make([]Section, 0, len(data.Content))
	for _, c := range data.Content {
		sections = append(sections, Section{Heading: c.Heading, Body: c.Body})
	}
	return PostDetail{
		UID:                  doc.UID,
		FirstPublicationDate: first,
		LastPublicationDate:  last,
		Title:                *data.Title,
		Subtitle:             data.Subtitle,
		Banner:               Banner{URL: data.Banner.URL, Alt: data.Banner.Alt},
		Author:               data.Author,
		Content:              sections,
	}, nil
}

func decodeData(doc prismic.Document, out any) error {
	if len(doc.Data) == 0 || string(doc.Data) == "null" {
		return &MalformedError{UID: doc.UID, Field: "data"}
	}
	if err := json.Unmarshal(doc.Data, out); err != nil {
		return &MalformedError{UID: doc.UID, Field: "data", Err: err}
	}
	return nil
}

// MapSummaries maps every document of a listing response. Under
// PolicySkip, failing documents are reported to onSkip (if non-nil) and
// dropped; under PolicyFail the first failure is returned.
func MapSummaries(docs []prismic.Document, policy Policy, onSkip func(error)) ([]PostSummary, error) {
	out := make([]PostSummary, 0, len(docs))
	for _, doc := range docs {
		s, err := SummaryFromDocument(doc)
		if err != nil {
			if policy == PolicySkip {
				if onSkip != nil {
					onSkip(err)
				}
				continue
			}
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

package extract

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"maps"
	"strings"

	"github.com/cloudwego/eino/components/document/parser"
	"github.com/cloudwego/eino/schema"
	"github.com/ledongthuc/pdf"
)

// MetaPage is the document metadata key holding the 1-based page number.
const MetaPage = "page"

// PDFParser turns the text layer of a PDF into one document per non-empty page.
// Any page error aborts the whole file.
type PDFParser struct{}

var _ parser.Parser = (*PDFParser)(nil)

func (p *PDFParser) Parse(ctx context.Context, reader io.Reader, opts ...parser.Option) (docs []*schema.Document, err error) {
	options := parser.GetCommonOptions(&parser.Options{}, opts...)

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("%w: read: %v", ErrExtraction, err)
	}

	// ledongthuc/pdf panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			docs = nil
			err = fmt.Errorf("%w: %v", ErrExtraction, r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExtraction, err)
	}

	numPages := r.NumPage()
	for i := 1; i <= numPages; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("%w: page %d: %v", ErrExtraction, i, err)
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		meta := make(map[string]any, len(options.ExtraMeta)+1)
		maps.Copy(meta, options.ExtraMeta)
		meta[MetaPage] = i
		docs = append(docs, &schema.Document{
			ID:       fmt.Sprintf("%s#page=%d", options.URI, i),
			Content:  text,
			MetaData: meta,
		})
	}
	return docs, nil
}

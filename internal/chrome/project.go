package chrome

import (
	"fmt"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/microcosm-cc/bluemonday"
)

// Projector turns page HTML into the markdown carried by engine.Frame.
type Projector struct {
	policy *bluemonday.Policy
	conv   *converter.Converter
}

func NewProjector() *Projector {
	return &Projector{
		policy: bluemonday.UGCPolicy(),
		conv: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
	}
}

// Markdown sanitises doc and converts it. Relative links are resolved
// against pageURL.
func (p *Projector) Markdown(doc, pageURL string) (string, error) {
	clean := p.policy.Sanitize(doc)
	var (
		md  string
		err error
	)
	if pageURL != "" {
		md, err = p.conv.ConvertString(clean, converter.WithDomain(pageURL))
	} else {
		md, err = p.conv.ConvertString(clean)
	}
	if err != nil {
		return "", fmt.Errorf("chrome: project %s: %w", pageURL, err)
	}
	return md, nil
}

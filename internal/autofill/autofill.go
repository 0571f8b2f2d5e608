// Package autofill makes a best-effort attempt to submit application forms
// linked from an opportunity. It is strictly advisory: nothing in the
// pipeline depends on its outcome and every failure is swallowed after
// logging.
package autofill

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"jobscout/internal/logger"
	"jobscout/internal/profile"
)

var formHosts = []string{
	"docs.google.com",
	"forms.gle",
	"forms.office.com",
}

// IsFormURL reports whether the URL looks like a hosted application form.
func IsFormURL(raw string) bool {
	parsed, err := url.Parse(raw)
	if err != nil {
		return false
	}

	host := strings.ToLower(parsed.Hostname())
	for _, known := range formHosts {
		if host == known || strings.HasSuffix(host, "."+known) {
			if known == "docs.google.com" && !strings.Contains(parsed.Path, "/forms/") {
				continue
			}
			return true
		}
	}

	return false
}

// labelFields maps substrings of a question label to a profile value.
func labelFields(prof *profile.Profile) map[string]string {
	fields := map[string]string{
		"name":  prof.Name,
		"email": prof.Email,
	}
	if len(prof.Links) > 0 {
		fields["portfolio"] = prof.Links[0]
		fields["linkedin"] = prof.Links[0]
		fields["website"] = prof.Links[0]
	}
	return fields
}

type Filler struct {
	client  *http.Client
	profile *profile.Profile
	logger  *zap.Logger
}

func NewFiller(prof *profile.Profile, log *zap.Logger) *Filler {
	return &Filler{
		client:  &http.Client{Timeout: 20 * time.Second},
		profile: prof,
		logger:  log,
	}
}

// Fill fetches the form, maps its labelled inputs to profile fields and
// submits whatever it managed to match. It returns true only when the
// submission was accepted; false never carries an error.
func (f *Filler) Fill(ctx context.Context, formURL string) bool {
	if !IsFormURL(formURL) {
		return false
	}

	doc, base, ok := f.fetchForm(ctx, formURL)
	if !ok {
		return false
	}

	action, values := f.matchFields(doc, base)
	if action == "" || len(values) == 0 {
		f.logger.Debug("no fillable fields matched",
			zap.String(logger.FieldURL, formURL))
		return false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, action,
		strings.NewReader(values.Encode()))
	if err != nil {
		f.logger.Debug("form submit request failed",
			zap.String(logger.FieldURL, formURL), zap.Error(err))
		return false
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := f.client.Do(req)
	if err != nil {
		f.logger.Debug("form submit failed",
			zap.String(logger.FieldURL, formURL), zap.Error(err))
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		f.logger.Debug("form submit rejected",
			zap.String(logger.FieldURL, formURL),
			zap.Int("status", resp.StatusCode))
		return false
	}

	f.logger.Info("application form submitted",
		zap.String(logger.FieldURL, formURL),
		zap.Int("fields", len(values)))

	return true
}

func (f *Filler) fetchForm(ctx context.Context, formURL string) (*goquery.Document, *url.URL, bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, formURL, nil)
	if err != nil {
		f.logger.Debug("form fetch request failed",
			zap.String(logger.FieldURL, formURL), zap.Error(err))
		return nil, nil, false
	}

	resp, err := f.client.Do(req)
	if err != nil {
		f.logger.Debug("form fetch failed",
			zap.String(logger.FieldURL, formURL), zap.Error(err))
		return nil, nil, false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		f.logger.Debug("form fetch rejected",
			zap.String(logger.FieldURL, formURL),
			zap.Int("status", resp.StatusCode))
		return nil, nil, false
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		f.logger.Debug("form parse failed",
			zap.String(logger.FieldURL, formURL), zap.Error(err))
		return nil, nil, false
	}

	// Redirects (forms.gle short links) change the base for relative actions.
	return doc, resp.Request.URL, true
}

// matchFields walks the form's inputs, resolves each one's label text and
// pairs it with a profile value when the label mentions a known field.
func (f *Filler) matchFields(doc *goquery.Document, base *url.URL) (string, url.Values) {
	form := doc.Find("form").First()
	if form.Length() == 0 {
		return "", nil
	}

	action, _ := form.Attr("action")
	action = resolveAction(base, action)

	fields := labelFields(f.profile)
	values := url.Values{}

	form.Find("input[type=text], input[type=email], input:not([type]), textarea").Each(func(_ int, sel *goquery.Selection) {
		name, ok := sel.Attr("name")
		if !ok || name == "" {
			return
		}

		label := fieldLabel(form, sel)
		if label == "" {
			return
		}

		lower := strings.ToLower(label)
		for key, value := range fields {
			if value != "" && strings.Contains(lower, key) {
				values.Set(name, value)
				break
			}
		}
	})

	// Hidden inputs carry tokens the form host requires.
	form.Find("input[type=hidden]").Each(func(_ int, sel *goquery.Selection) {
		name, nameOK := sel.Attr("name")
		value, valueOK := sel.Attr("value")
		if nameOK && valueOK && name != "" {
			values.Set(name, value)
		}
	})

	return action, values
}

// fieldLabel finds the visible label for an input: an explicit <label for=…>,
// an enclosing <label>, or the input's own placeholder or aria-label.
func fieldLabel(form *goquery.Selection, input *goquery.Selection) string {
	if id, ok := input.Attr("id"); ok && id != "" {
		label := form.Find(fmt.Sprintf("label[for=%q]", id)).First()
		if label.Length() > 0 {
			return strings.TrimSpace(label.Text())
		}
	}

	if wrapped := input.ParentsFiltered("label").First(); wrapped.Length() > 0 {
		return strings.TrimSpace(wrapped.Text())
	}

	if placeholder, ok := input.Attr("placeholder"); ok && placeholder != "" {
		return placeholder
	}
	if aria, ok := input.Attr("aria-label"); ok && aria != "" {
		return aria
	}

	return ""
}

func resolveAction(base *url.URL, action string) string {
	if action == "" {
		if base == nil {
			return ""
		}
		return base.String()
	}

	parsed, err := url.Parse(action)
	if err != nil {
		return ""
	}
	if base != nil {
		parsed = base.ResolveReference(parsed)
	}

	return parsed.String()
}

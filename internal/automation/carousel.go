package automation

import (
	"errors"
	"fmt"
	"strings"

	"instaflow/internal/instagram"
	"instaflow/internal/models"

	"github.com/go-playground/validator/v10"
)

var ErrEmptyCarousel = errors.New("carousel template has no elements")

// ValidateCarousel checks a template before it is stored or sent: at most
// ten elements, every element titled, at most three buttons each, every
// button titled with a payload, and WEB_URL payloads starting with http.
func ValidateCarousel(v *validator.Validate, tmpl *models.CarouselTemplate) error {
	if tmpl == nil || len(tmpl.Elements) == 0 {
		return ErrEmptyCarousel
	}

	normalized := *tmpl
	normalized.Elements = make([]models.CarouselElement, len(tmpl.Elements))
	for i, el := range tmpl.Elements {
		el.Buttons = append([]models.CarouselButton(nil), el.Buttons...)
		for j := range el.Buttons {
			el.Buttons[j].Type = strings.ToUpper(el.Buttons[j].Type)
		}
		normalized.Elements[i] = el
	}

	if err := v.Struct(&normalized); err != nil {
		return fmt.Errorf("invalid carousel template: %w", err)
	}

	for i, el := range normalized.Elements {
		for j, b := range el.Buttons {
			if b.Type == models.ButtonWebURL && !strings.HasPrefix(b.Payload, "http") {
				return fmt.Errorf("invalid carousel template: element %d button %d: web_url payload must be an http(s) URL", i, j)
			}
		}
	}
	return nil
}

// BuildCarousel validates a template and maps it to the wire format.
func BuildCarousel(v *validator.Validate, tmpl *models.CarouselTemplate) ([]instagram.GenericElement, error) {
	if err := ValidateCarousel(v, tmpl); err != nil {
		return nil, err
	}

	elements := make([]instagram.GenericElement, 0, len(tmpl.Elements))
	for _, el := range tmpl.Elements {
		ge := instagram.GenericElement{
			Title:    el.Title,
			Subtitle: el.Subtitle,
			ImageURL: el.ImageURL,
		}
		if el.DefaultActionURL != "" {
			ge.DefaultAction = &instagram.DefaultAction{Type: instagram.ButtonWebURL, URL: el.DefaultActionURL}
		}
		for _, b := range el.Buttons {
			ge.Buttons = append(ge.Buttons, wireButton(b.Type, b.Title, b.Payload))
		}
		elements = append(elements, ge)
	}
	return elements, nil
}

// wireButton maps a stored button type to the lowercase wire button. For
// web_url the payload is the target URL.
func wireButton(kind, title, payload string) instagram.Button {
	if strings.EqualFold(kind, models.ButtonWebURL) {
		return instagram.Button{Type: instagram.ButtonWebURL, Title: title, URL: payload}
	}
	return instagram.Button{Type: instagram.ButtonPostback, Title: title, Payload: payload}
}

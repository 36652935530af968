package generation

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"orbitstudio/internal/domain"
)

// MaxReferenceImages is how many reference images one request may carry.
const MaxReferenceImages = 3

// AcceptedImageTypes are the reference image MIME types the model accepts.
var AcceptedImageTypes = []string{"image/png", "image/jpeg", "image/webp"}

// Field describes one form setting: its default, the allowed options and
// whether its value is appended to the prompt.
type Field struct {
	Name        string
	Label       string
	Default     string
	Options     []string
	Required    bool
	Resettable  bool
	Descriptive bool
}

// Fields lists the form settings in prompt order.
var Fields = []Field{
	{Name: "aspectRatio", Label: "Aspect ratio", Default: "16:9", Options: []string{"16:9"}},
	{Name: "resolution", Label: "Resolution", Default: "720p", Options: []string{"720p"}},
	{Name: "sampleCount", Label: "Quantity of outputs", Default: "4", Options: []string{"1", "2", "3", "4"}},
	{
		Name:        "background",
		Label:       "Background",
		Default:     "White",
		Options:     []string{"White", "Black", "Flowery lauwn", "Space starry sky"},
		Required:    true,
		Resettable:  true,
		Descriptive: true,
	},
	{
		Name:        "spotlight",
		Label:       "Spotlight",
		Options:     []string{"top-left", "top-right", "bottom-left", "bottom-right"},
		Resettable:  true,
		Descriptive: true,
	},
}

// value returns the form value for a field name.
func value(f domain.FormData, name string) string {
	switch name {
	case "aspectRatio":
		return f.AspectRatio
	case "resolution":
		return f.Resolution
	case "sampleCount":
		return f.SampleCount
	case "background":
		return f.Background
	case "spotlight":
		return f.Spotlight
	}
	return ""
}

func setValue(f *domain.FormData, name, v string) {
	switch name {
	case "aspectRatio":
		f.AspectRatio = v
	case "resolution":
		f.Resolution = v
	case "sampleCount":
		f.SampleCount = v
	case "background":
		f.Background = v
	case "spotlight":
		f.Spotlight = v
	}
}

// Defaults returns a form populated with every field default and no images.
func Defaults() domain.FormData {
	var f domain.FormData
	for _, field := range Fields {
		setValue(&f, field.Name, field.Default)
	}
	return f
}

// ApplyDefaults fills settings the caller left blank. Optional descriptive
// fields stay blank because blank means "not part of the prompt".
func ApplyDefaults(f domain.FormData) domain.FormData {
	for _, field := range Fields {
		if strings.TrimSpace(value(f, field.Name)) == "" && (field.Required || !field.Descriptive) {
			setValue(&f, field.Name, field.Default)
		}
	}
	return f
}

// Reset clears the resettable settings back to their defaults.
func Reset(f domain.FormData) domain.FormData {
	f.Images = nil
	for _, field := range Fields {
		if field.Resettable {
			setValue(&f, field.Name, field.Default)
		}
	}
	return f
}

// Validate checks a form before any network activity.
func Validate(f domain.FormData) error {
	if len(f.Images) == 0 {
		return invalid("at least one reference image is required")
	}
	if len(f.Images) > MaxReferenceImages {
		return invalid(fmt.Sprintf("at most %d reference images are allowed", MaxReferenceImages))
	}
	for i, img := range f.Images {
		if len(img.Data) == 0 {
			return invalid(fmt.Sprintf("reference image %d is empty", i+1))
		}
		if !slices.Contains(AcceptedImageTypes, strings.ToLower(img.MimeType)) {
			return invalid(fmt.Sprintf("reference image %d has unsupported type %q", i+1, img.MimeType))
		}
	}
	for _, field := range Fields {
		v := value(f, field.Name)
		if v == "" {
			if field.Required || !field.Descriptive {
				return invalid(fmt.Sprintf("%s is required", field.Label))
			}
			continue
		}
		if len(field.Options) > 0 && !slices.Contains(field.Options, v) {
			return invalid(fmt.Sprintf("%s %q is not one of %s", field.Label, v, strings.Join(field.Options, ", ")))
		}
	}
	if _, err := SampleCount(f); err != nil {
		return err
	}
	return nil
}

// SampleCount parses the form's sample count.
func SampleCount(f domain.FormData) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(f.SampleCount))
	if err != nil || n <= 0 {
		return 0, invalid(fmt.Sprintf("sample count %q is not a positive integer", f.SampleCount))
	}
	return n, nil
}

func invalid(msg string) error {
	return domain.NewError(domain.ErrValidation, msg, nil)
}

// Package i18n localizes the user-facing messages produced by the generation
// pipeline. English is the source language; unknown messages pass through.
package i18n

import (
	"strings"

	"golang.org/x/text/language"

	"orbitstudio/internal/domain"
)

const (
	English    = "en"
	Indonesian = "id"
)

var supported = []language.Tag{language.English, language.Indonesian}

var matcher = language.NewMatcher(supported)

var catalog = map[string]string{
	domain.RateLimitMessage:       "Ups, terlalu banyak akses saat ini, silakan coba lagi nanti!",
	domain.MissingContextMessage:  "Konteks aplikasi tidak lengkap (GCS URI atau User ID).",
	domain.InitiateAuthMessage:    "Tidak dapat mengautentikasi akun Anda untuk membuat video.",
	domain.InitiateShapeMessage:   "Gagal memulai video: struktur respons tidak dikenali.",
	domain.InitiateFailureMessage: "Terjadi kesalahan tak terduga saat memulai pembuatan video.",
	domain.PollAuthMessage:        "Tidak dapat mengautentikasi untuk memeriksa status.",
	domain.PollFailureMessage:     "Terjadi kesalahan saat memeriksa status pembuatan video.",
	domain.InvalidHandleMessage:   "Format nama operasi tidak valid.",
	domain.BackendFailureMessage:  "Pembuatan video gagal.",
	domain.EmptyResultMessage:     "Operasi selesai, tetapi respons tidak sesuai format yang diharapkan.",
	"generation not found":        "Generasi tidak ditemukan.",
	"no active job on surface":    "Tidak ada pekerjaan aktif pada permukaan ini.",
	"invalid payload":             "Payload tidak valid.",
	"too many requests":           "Terlalu banyak permintaan.",
	"internal error":              "Terjadi kesalahan internal.",
	"invalid token":               "Token tidak valid.",
}

// Match picks the supported locale for a list of language preferences such
// as an Accept-Language header or an X-Locale value. It returns "" when
// nothing parses.
func Match(preferences ...string) string {
	var tags []language.Tag
	for _, pref := range preferences {
		if strings.TrimSpace(pref) == "" {
			continue
		}
		parsed, _, err := language.ParseAcceptLanguage(pref)
		if err != nil {
			continue
		}
		tags = append(tags, parsed...)
	}
	if len(tags) == 0 {
		return ""
	}
	_, idx, conf := matcher.Match(tags...)
	if conf == language.No {
		return English
	}
	base, _ := supported[idx].Base()
	return base.String()
}

// Normalize maps any locale string to a supported locale, defaulting to
// English.
func Normalize(locale string) string {
	if m := Match(locale); m != "" {
		return m
	}
	return English
}

// Translate returns message in locale. Messages built at runtime, such as
// the not-found text that embeds an operation name, are translated by
// prefix.
func Translate(locale, message string) string {
	if Normalize(locale) != Indonesian {
		return message
	}
	if t, ok := catalog[message]; ok {
		return t
	}
	if handle, ok := strings.CutPrefix(message, "Operation "); ok {
		if name, ok := strings.CutSuffix(handle, " not found. It might have expired or never existed."); ok {
			return "Operasi " + name + " tidak ditemukan. Mungkin sudah kedaluwarsa atau tidak pernah ada."
		}
	}
	return message
}

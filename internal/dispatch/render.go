package dispatch

import (
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const (
	keySubject = "assignment.subject"
	keyBody    = "assignment.body"
)

var catalanTag = language.MustParse("ca")

// The first supported tag is the fallback for unknown locales.
var supportedTags = []language.Tag{
	language.Spanish,
	catalanTag,
	language.English,
}

var tagMatcher = language.NewMatcher(supportedTags)

func init() {
	message.SetString(language.Spanish, keySubject, "Partida Killer Kiss: %s")
	message.SetString(language.Spanish, keyBody,
		"Hola %s,\n\nHas sido invitado a la partida de Killer Kiss %q.\n\nTu víctima es: %s\n\n¡Buena suerte!")

	message.SetString(catalanTag, keySubject, "Partida Killer Kiss: %s")
	message.SetString(catalanTag, keyBody,
		"Hola %s,\n\nHas estat convidat a la partida de Killer Kiss %q.\n\nLa teva víctima és: %s\n\nBona sort!")

	message.SetString(language.English, keySubject, "Killer Kiss match: %s")
	message.SetString(language.English, keyBody,
		"Hi %s,\n\nYou have been invited to the Killer Kiss match %q.\n\nYour target is: %s\n\nGood luck!")
}

// Renderer produces the localized assignment notice.
type Renderer struct{}

// Resolve maps a requested locale ("ca", "en-GB", "") to a supported tag.
func (Renderer) Resolve(locale string) language.Tag {
	locale = strings.TrimSpace(locale)
	if locale == "" {
		return supportedTags[0]
	}
	tag, err := language.Parse(locale)
	if err != nil {
		return supportedTags[0]
	}
	_, idx, conf := tagMatcher.Match(tag)
	if conf == language.No {
		return supportedTags[0]
	}
	return supportedTags[idx]
}

// Render returns subject and body telling player who their target is.
func (r Renderer) Render(locale, matchName, player, target string) (subject, body string) {
	p := message.NewPrinter(r.Resolve(locale))
	return p.Sprintf(keySubject, matchName), p.Sprintf(keyBody, player, matchName, target)
}

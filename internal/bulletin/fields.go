package bulletin

import (
	"slices"
	"strings"
)

// Standard public field tags, in display order.
const (
	TagAuthor       = "author"
	TagOrganization = "organization"
	TagTitle        = "title"
	TagLocation     = "location"
	TagEventDate    = "eventdate"
	TagEntryDate    = "entrydate"
	TagKeywords     = "keywords"
	TagSummary      = "summary"
	TagPublicInfo   = "publicinfo"
	TagLanguage     = "language"

	TagPrivateInfo = "privateinfo"
)

var standardFields = []string{
	TagAuthor, TagOrganization, TagTitle, TagLocation, TagEventDate,
	TagEntryDate, TagKeywords, TagSummary, TagPublicInfo, TagLanguage,
}

var privateFields = []string{TagPrivateInfo}

// StandardFieldNames returns the public field tags.
func StandardFieldNames() []string {
	return slices.Clone(standardFields)
}

// PrivateFieldNames returns the private field tags.
func PrivateFieldNames() []string {
	return slices.Clone(privateFields)
}

func IsStandardField(tag string) bool {
	return slices.Contains(standardFields, strings.ToLower(tag))
}

func IsPrivateField(tag string) bool {
	return slices.Contains(privateFields, strings.ToLower(tag))
}

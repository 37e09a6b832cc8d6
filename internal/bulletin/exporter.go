package bulletin

import (
	"encoding/xml"
	"io"
)

type exportedBulletins struct {
	XMLName   xml.Name           `xml:"ExportedBulletins"`
	Bulletins []exportedBulletin `xml:"Bulletin"`
}

type exportedBulletin struct {
	LocalID   string          `xml:"LocalId"`
	AccountID string          `xml:"AuthorAccountId"`
	Status    string          `xml:"BulletinStatus"`
	Fields    []exportedField `xml:"Field"`
	Private   []exportedField `xml:"PrivateField,omitempty"`
}

type exportedField struct {
	Tag   string `xml:"tag,attr"`
	Value string `xml:",chardata"`
}

// ExportXML writes the readable fields of bs as an ExportedBulletins
// document. All-private bulletins are left out and private fields omitted
// unless includePrivate is set.
func ExportXML(w io.Writer, bs []*Bulletin, includePrivate bool) error {
	doc := exportedBulletins{}
	for _, b := range bs {
		if b.AllPrivate() && !includePrivate {
			continue
		}
		eb := exportedBulletin{LocalID: b.LocalID(), AccountID: b.AccountID(), Status: string(b.Status())}
		for _, tag := range StandardFieldNames() {
			eb.Fields = append(eb.Fields, exportedField{Tag: tag, Value: b.Get(tag)})
		}
		if includePrivate {
			for _, tag := range PrivateFieldNames() {
				eb.Private = append(eb.Private, exportedField{Tag: tag, Value: b.Get(tag)})
			}
		}
		doc.Bulletins = append(doc.Bulletins, eb)
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\n")
	return err
}

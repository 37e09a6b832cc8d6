package packet

import (
	"bytes"
	"encoding/base64"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"
	"unicode/utf8"
)

type xmlWriter struct {
	buf bytes.Buffer
}

func (w *xmlWriter) open(tag string) {
	w.buf.WriteString("<" + tag + ">\n")
}

func (w *xmlWriter) close(tag string) {
	w.buf.WriteString("</" + tag + ">\n")
}

func (w *xmlWriter) elem(tag, value string) {
	w.buf.WriteString("<" + tag + ">")
	_ = xml.EscapeText(&w.buf, []byte(value))
	w.buf.WriteString("</" + tag + ">\n")
}

func (w *xmlWriter) elemAttr(tag, attr, attrValue, value string) {
	w.buf.WriteString("<" + tag + " " + attr + "=\"")
	_ = xml.EscapeText(&w.buf, []byte(attrValue))
	w.buf.WriteString("\">")
	_ = xml.EscapeText(&w.buf, []byte(value))
	w.buf.WriteString("</" + tag + ">\n")
}

func (w *xmlWriter) bytesElem(tag string, b []byte) {
	w.elem(tag, base64.StdEncoding.EncodeToString(b))
}

func flag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// Serialize renders the packet body. Equal packets serialize to identical
// bytes.
func Serialize(p *Packet) ([]byte, error) {
	root := p.Kind.rootElement()
	if root == "" {
		return nil, fmt.Errorf("cannot serialize packet kind %d", p.Kind)
	}

	var w xmlWriter
	w.open(root)
	w.elem("PacketId", p.UID.LocalID)
	w.elem("AccountId", p.UID.AccountID)

	switch p.Kind {
	case KindHeader:
		if p.Header == nil {
			return nil, errors.New("header packet without header")
		}
		writeHeader(&w, p.Header)
	case KindPublicData, KindPrivateData:
		if p.Fields == nil {
			return nil, errors.New("data packet without fields")
		}
		writeFieldData(&w, p.Fields)
	case KindAttachment:
		if p.Attachment == nil {
			return nil, errors.New("attachment packet without attachment")
		}
		writeAttachment(&w, p.Attachment)
	}

	w.close(root)
	return w.buf.Bytes(), nil
}

func writeHeader(w *xmlWriter, h *Header) {
	w.elem("BulletinStatus", string(h.Status))
	var saved int64
	if !h.LastSaved.IsZero() {
		saved = h.LastSaved.UnixMilli()
	}
	w.elem("LastSavedTime", strconv.FormatInt(saved, 10))
	w.elem("AllPrivate", flag(h.AllPrivate))
	if h.HQPublicKey != "" {
		w.elem("HQPublicKey", h.HQPublicKey)
	}
	if h.DataID != "" {
		w.elem("DataPacketId", h.DataID)
		w.bytesElem("DataPacketSig", h.DataSig)
	}
	if h.PrivateDataID != "" {
		w.elem("PrivateDataPacketId", h.PrivateDataID)
		w.bytesElem("PrivateDataPacketSig", h.PrivateDataSig)
	}
	for _, id := range sortedUnique(h.PublicAttachmentIDs) {
		w.elem("PublicAttachmentId", id)
	}
	for _, id := range sortedUnique(h.PrivateAttachmentIDs) {
		w.elem("PrivateAttachmentId", id)
	}
}

func writeFieldData(w *xmlWriter, f *FieldData) {
	if !f.Encrypted {
		writeFields(w, f.Fields)
		return
	}
	w.elem("Encrypted", "1")
	w.bytesElem("SessionKey", f.SessionKey)
	if len(f.HQSessionKey) > 0 {
		w.bytesElem("HQSessionKey", f.HQSessionKey)
	}
	w.bytesElem("EncryptedData", f.EncryptedData)
}

// Field values that XML cannot carry verbatim (control characters, invalid
// UTF-8) are written base64 encoded so they load back unchanged.
func writeFields(w *xmlWriter, fields []Field) {
	for _, f := range fields {
		if isXMLText(f.Value) {
			w.elemAttr("Field", "tag", f.Tag, f.Value)
			continue
		}
		w.buf.WriteString("<Field tag=\"")
		_ = xml.EscapeText(&w.buf, []byte(f.Tag))
		w.buf.WriteString("\" encoding=\"base64\">")
		w.buf.WriteString(base64.StdEncoding.EncodeToString([]byte(f.Value)))
		w.buf.WriteString("</Field>\n")
	}
}

func isXMLText(s string) bool {
	if !utf8.ValidString(s) {
		return false
	}
	for _, r := range s {
		switch {
		case r == '\t', r == '\n', r == '\r':
		case r >= 0x20 && r <= 0xD7FF:
		case r >= 0xE000 && r <= 0xFFFD:
		case r >= 0x10000 && r <= utf8.MaxRune:
		default:
			return false
		}
	}
	return true
}

func writeAttachment(w *xmlWriter, a *Attachment) {
	w.elem("Label", a.Label)
	w.bytesElem("SessionKey", a.SessionKey)
	if len(a.HQSessionKey) > 0 {
		w.bytesElem("HQSessionKey", a.HQSessionKey)
	}
	w.bytesElem("Data", a.Data)
}

func encodeFieldList(fields []Field) []byte {
	var w xmlWriter
	w.open("FieldList")
	writeFields(&w, fields)
	w.close("FieldList")
	return w.buf.Bytes()
}

type xmlLeaf struct {
	Attrs []xml.Attr `xml:",any,attr"`
	Text  string     `xml:",chardata"`
}

func (l xmlLeaf) attr(name string) string {
	for _, a := range l.Attrs {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}

func (l xmlLeaf) decodeBytes() ([]byte, error) {
	return base64.StdEncoding.DecodeString(l.Text)
}

type setter func(p *Packet, l xmlLeaf) error

var headerSetters = map[string]setter{
	"BulletinStatus": func(p *Packet, l xmlLeaf) (err error) {
		p.Header.Status, err = ParseStatus(l.Text)
		return err
	},
	"LastSavedTime": func(p *Packet, l xmlLeaf) error {
		ms, err := strconv.ParseInt(l.Text, 10, 64)
		if err != nil {
			return err
		}
		if ms != 0 {
			p.Header.LastSaved = time.UnixMilli(ms)
		}
		return nil
	},
	"AllPrivate": func(p *Packet, l xmlLeaf) error {
		p.Header.AllPrivate = l.Text == "1"
		return nil
	},
	"HQPublicKey": func(p *Packet, l xmlLeaf) error {
		p.Header.HQPublicKey = l.Text
		return nil
	},
	"DataPacketId": func(p *Packet, l xmlLeaf) error {
		p.Header.DataID = l.Text
		return nil
	},
	"DataPacketSig": func(p *Packet, l xmlLeaf) (err error) {
		p.Header.DataSig, err = l.decodeBytes()
		return err
	},
	"PrivateDataPacketId": func(p *Packet, l xmlLeaf) error {
		p.Header.PrivateDataID = l.Text
		return nil
	},
	"PrivateDataPacketSig": func(p *Packet, l xmlLeaf) (err error) {
		p.Header.PrivateDataSig, err = l.decodeBytes()
		return err
	},
	"PublicAttachmentId": func(p *Packet, l xmlLeaf) error {
		p.Header.AddPublicAttachment(l.Text)
		return nil
	},
	"PrivateAttachmentId": func(p *Packet, l xmlLeaf) error {
		p.Header.AddPrivateAttachment(l.Text)
		return nil
	},
}

var fieldDataSetters = map[string]setter{
	"Field": func(p *Packet, l xmlLeaf) error {
		tag := l.attr("tag")
		if tag == "" {
			return errors.New("field without tag")
		}
		value := l.Text
		switch l.attr("encoding") {
		case "":
		case "base64":
			raw, err := l.decodeBytes()
			if err != nil {
				return err
			}
			value = string(raw)
		default:
			return fmt.Errorf("field %q: unknown encoding", tag)
		}
		p.Fields.Fields = append(p.Fields.Fields, Field{Tag: tag, Value: value})
		return nil
	},
	"Encrypted": func(p *Packet, l xmlLeaf) error {
		p.Fields.Encrypted = l.Text == "1"
		return nil
	},
	"SessionKey": func(p *Packet, l xmlLeaf) (err error) {
		p.Fields.SessionKey, err = l.decodeBytes()
		return err
	},
	"HQSessionKey": func(p *Packet, l xmlLeaf) (err error) {
		p.Fields.HQSessionKey, err = l.decodeBytes()
		return err
	},
	"EncryptedData": func(p *Packet, l xmlLeaf) (err error) {
		p.Fields.EncryptedData, err = l.decodeBytes()
		return err
	},
}

var attachmentSetters = map[string]setter{
	"Label": func(p *Packet, l xmlLeaf) error {
		p.Attachment.Label = l.Text
		return nil
	},
	"SessionKey": func(p *Packet, l xmlLeaf) (err error) {
		p.Attachment.SessionKey, err = l.decodeBytes()
		return err
	},
	"HQSessionKey": func(p *Packet, l xmlLeaf) (err error) {
		p.Attachment.HQSessionKey, err = l.decodeBytes()
		return err
	},
	"Data": func(p *Packet, l xmlLeaf) (err error) {
		p.Attachment.Data, err = l.decodeBytes()
		return err
	},
}

// parse rebuilds a packet from its body. Unknown elements are skipped so
// newer writers stay readable.
func parse(body []byte) (*Packet, error) {
	d := xml.NewDecoder(bytes.NewReader(body))

	root, err := nextStart(d)
	if err != nil {
		return nil, err
	}
	kind, ok := kindFromRoot(root.Name.Local)
	if !ok {
		return nil, fmt.Errorf("unknown packet element %q", root.Name.Local)
	}

	p := &Packet{Kind: kind}
	var setters map[string]setter
	switch kind {
	case KindHeader:
		p.Header = &Header{}
		setters = headerSetters
	case KindPublicData, KindPrivateData:
		p.Fields = &FieldData{}
		setters = fieldDataSetters
	case KindAttachment:
		p.Attachment = &Attachment{}
		setters = attachmentSetters
	}

	if err := decodeChildren(d, func(name string, l xmlLeaf) error {
		switch name {
		case "PacketId":
			p.UID.LocalID = l.Text
			return nil
		case "AccountId":
			p.UID.AccountID = l.Text
			return nil
		}
		if set, ok := setters[name]; ok {
			return set(p, l)
		}
		return nil
	}); err != nil {
		return nil, err
	}

	if p.UID.LocalID == "" || p.UID.AccountID == "" {
		return nil, errors.New("packet without id")
	}
	if kind == KindHeader && p.Header.Status == "" {
		return nil, errors.New("header without status")
	}
	return p, nil
}

func decodeFieldList(data []byte) ([]Field, error) {
	d := xml.NewDecoder(bytes.NewReader(data))
	root, err := nextStart(d)
	if err != nil {
		return nil, err
	}
	if root.Name.Local != "FieldList" {
		return nil, fmt.Errorf("unexpected element %q", root.Name.Local)
	}

	holder := &Packet{Fields: &FieldData{}}
	if err := decodeChildren(d, func(name string, l xmlLeaf) error {
		if name != "Field" {
			return nil
		}
		return fieldDataSetters["Field"](holder, l)
	}); err != nil {
		return nil, err
	}
	return holder.Fields.Fields, nil
}

func nextStart(d *xml.Decoder) (xml.StartElement, error) {
	for {
		tok, err := d.Token()
		if err != nil {
			return xml.StartElement{}, err
		}
		if se, ok := tok.(xml.StartElement); ok {
			return se, nil
		}
	}
}

// decodeChildren feeds each direct child of the current element to fn and
// returns at the closing tag.
func decodeChildren(d *xml.Decoder, fn func(name string, l xmlLeaf) error) error {
	for {
		tok, err := d.Token()
		if err == io.EOF {
			return io.ErrUnexpectedEOF
		}
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			var l xmlLeaf
			if err := d.DecodeElement(&l, &t); err != nil {
				return err
			}
			if err := fn(t.Name.Local, l); err != nil {
				return fmt.Errorf("%s: %w", t.Name.Local, err)
			}
		case xml.EndElement:
			return nil
		}
	}
}

package webhook

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Payload is the raw provider webhook body. The provider sends either JSON
// directly or a form field "jsonData" holding the same JSON as a string;
// both land here after a single deserialization step.
type Payload struct {
	Type         string          `json:"type"`
	InstanceName string          `json:"instanceName"`
	Event        Event           `json:"event"`
	Base64       string          `json:"base64,omitempty"`
	MimeType     string          `json:"mimeType,omitempty"`
	S3           *S3Info         `json:"s3,omitempty"`
	Raw          json.RawMessage `json:"-"`
}

type S3Info struct {
	URL string `json:"url"`
}

// Event wraps the provider message envelope.
type Event struct {
	Info    Info            `json:"Info"`
	Message json.RawMessage `json:"Message"`
}

// Info mirrors the provider's message metadata. Sender can arrive as a JID
// string or as an object; senderField absorbs both.
type Info struct {
	ID        string          `json:"ID"`
	Timestamp string          `json:"Timestamp"`
	Chat      string          `json:"Chat"`
	Sender    json.RawMessage `json:"Sender"`
	IsFromMe  bool            `json:"IsFromMe"`
	IsGroup   bool            `json:"IsGroup"`
	PushName  string          `json:"PushName"`
}

// SenderJID resolves the sender whether it arrived as a string or an object
// with a User/String field.
func (i Info) SenderJID() string {
	if len(i.Sender) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(i.Sender, &s); err == nil {
		return s
	}
	var obj struct {
		User   string `json:"User"`
		Server string `json:"Server"`
	}
	if err := json.Unmarshal(i.Sender, &obj); err == nil && obj.User != "" {
		if obj.Server != "" {
			return obj.User + "@" + obj.Server
		}
		return obj.User
	}
	return ""
}

// ParsedTime parses the ISO timestamp, falling back to now on garbage so a
// malformed provider clock never drops a message.
func (i Info) ParsedTime() time.Time {
	if t, err := time.Parse(time.RFC3339, i.Timestamp); err == nil {
		return t
	}
	return time.Now().UTC()
}

// NormalizedMessage is the strict internal projection of the provider's
// dynamic Message shape. Field-name casing differences (camelCase vs
// PascalCase) are resolved here, once, and never deeper in the pipeline.
type NormalizedMessage struct {
	Text          string
	MediaKind     string // "", "image", "video", "audio", "document", "location", "contact"
	Caption       string
	MimeType      string
	JPEGThumbnail []byte
}

type mediaSection struct {
	Caption       string `json:"caption"`
	CaptionP      string `json:"Caption"`
	Mimetype      string `json:"mimetype"`
	MimetypeP     string `json:"Mimetype"`
	JPEGThumbnail []byte `json:"JPEGThumbnail"`
	JpegThumbnail []byte `json:"jpegThumbnail"`
}

func (m mediaSection) caption() string {
	if m.Caption != "" {
		return m.Caption
	}
	return m.CaptionP
}

func (m mediaSection) mimetype() string {
	if m.Mimetype != "" {
		return m.Mimetype
	}
	return m.MimetypeP
}

func (m mediaSection) thumbnail() []byte {
	if len(m.JPEGThumbnail) > 0 {
		return m.JPEGThumbnail
	}
	return m.JpegThumbnail
}

type rawMessage struct {
	Conversation        string        `json:"conversation"`
	ConversationP       string        `json:"Conversation"`
	ExtendedTextMessage *extendedText `json:"extendedTextMessage"`
	ExtendedTextP       *extendedText `json:"ExtendedTextMessage"`
	ImageMessage        *mediaSection `json:"imageMessage"`
	ImageMessageP       *mediaSection `json:"ImageMessage"`
	VideoMessage        *mediaSection `json:"videoMessage"`
	VideoMessageP       *mediaSection `json:"VideoMessage"`
	AudioMessage        *mediaSection `json:"audioMessage"`
	AudioMessageP       *mediaSection `json:"AudioMessage"`
	DocumentMessage     *mediaSection `json:"documentMessage"`
	DocumentMessageP    *mediaSection `json:"DocumentMessage"`
	LocationMessage     *location     `json:"locationMessage"`
	LocationMessageP    *location     `json:"LocationMessage"`
	ContactMessage      *contact      `json:"contactMessage"`
	ContactMessageP     *contact      `json:"ContactMessage"`
}

type extendedText struct {
	Text  string `json:"text"`
	TextP string `json:"Text"`
}

type location struct {
	Latitude   float64 `json:"degreesLatitude"`
	LatitudeP  float64 `json:"DegreesLatitude"`
	Longitude  float64 `json:"degreesLongitude"`
	LongitudeP float64 `json:"DegreesLongitude"`
	Name       string  `json:"name"`
	NameP      string  `json:"Name"`
}

type contact struct {
	DisplayName  string `json:"displayName"`
	DisplayNameP string `json:"DisplayName"`
	Vcard        string `json:"vcard"`
	VcardP       string `json:"Vcard"`
}

func pick(sections ...*mediaSection) *mediaSection {
	for _, s := range sections {
		if s != nil {
			return s
		}
	}
	return nil
}

// Normalize projects the raw Message JSON into NormalizedMessage. Text
// priority follows the provider contract: conversation, extended text,
// media caption, then structured location/contact.
func Normalize(raw json.RawMessage) NormalizedMessage {
	var msg rawMessage
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &msg)
	}

	out := NormalizedMessage{}

	if msg.Conversation != "" {
		out.Text = msg.Conversation
	} else if msg.ConversationP != "" {
		out.Text = msg.ConversationP
	} else if ext := msg.ExtendedTextMessage; ext != nil && (ext.Text != "" || ext.TextP != "") {
		if ext.Text != "" {
			out.Text = ext.Text
		} else {
			out.Text = ext.TextP
		}
	} else if ext := msg.ExtendedTextP; ext != nil {
		if ext.Text != "" {
			out.Text = ext.Text
		} else {
			out.Text = ext.TextP
		}
	}

	if s := pick(msg.ImageMessage, msg.ImageMessageP); s != nil {
		out.MediaKind = "image"
		out.Caption = s.caption()
		out.MimeType = s.mimetype()
		out.JPEGThumbnail = s.thumbnail()
	} else if s := pick(msg.VideoMessage, msg.VideoMessageP); s != nil {
		out.MediaKind = "video"
		out.Caption = s.caption()
		out.MimeType = s.mimetype()
	} else if s := pick(msg.AudioMessage, msg.AudioMessageP); s != nil {
		out.MediaKind = "audio"
		out.MimeType = s.mimetype()
	} else if s := pick(msg.DocumentMessage, msg.DocumentMessageP); s != nil {
		out.MediaKind = "document"
		out.Caption = s.caption()
		out.MimeType = s.mimetype()
	}

	if out.Text == "" && out.Caption != "" {
		out.Text = out.Caption
	}

	if out.Text == "" {
		if loc := msg.LocationMessage; loc == nil {
			loc = msg.LocationMessageP
			msg.LocationMessage = loc
		}
		if loc := msg.LocationMessage; loc != nil {
			lat, lng := loc.Latitude, loc.Longitude
			if lat == 0 && loc.LatitudeP != 0 {
				lat = loc.LatitudeP
			}
			if lng == 0 && loc.LongitudeP != 0 {
				lng = loc.LongitudeP
			}
			name := loc.Name
			if name == "" {
				name = loc.NameP
			}
			if name != "" {
				out.Text = fmt.Sprintf("[Lokasi] %s (%f, %f)", name, lat, lng)
			} else {
				out.Text = fmt.Sprintf("[Lokasi] (%f, %f)", lat, lng)
			}
			out.MediaKind = "location"
		}
	}

	if out.Text == "" {
		c := msg.ContactMessage
		if c == nil {
			c = msg.ContactMessageP
		}
		if c != nil {
			name := c.DisplayName
			if name == "" {
				name = c.DisplayNameP
			}
			out.Text = strings.TrimSpace("[Kontak] " + name)
			out.MediaKind = "contact"
		}
	}

	return out
}

// WebchatMessage is an inbound webchat message posted by the widget
// backend. SessionID becomes the channel identifier.
type WebchatMessage struct {
	VillageID string `json:"village_id"`
	SessionID string `json:"session_id"`
	UserName  string `json:"user_name,omitempty"`
	Message   string `json:"message"`
	MessageID string `json:"message_id,omitempty"`
}

// ParsePayload deserializes a webhook body once, handling both raw JSON and
// the form-encoded jsonData variant.
func ParsePayload(body []byte) (*Payload, error) {
	var p Payload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, err
	}
	p.Raw = json.RawMessage(body)
	return &p, nil
}

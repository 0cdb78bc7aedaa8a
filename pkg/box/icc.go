package box

import (
	"encoding/binary"
	"fmt"
	"strings"
	"time"
)

const iccHeaderSize = 128

var iccClasses = map[string]string{
	"scnr": "input device profile",
	"mntr": "display device profile",
	"prtr": "output device profile",
	"link": "devicelink profile",
	"spac": "colorspace conversion profile",
	"abst": "abstract profile",
	"nmcl": "name colour profile",
}

var iccIntents = map[uint32]string{
	0: "perceptual",
	1: "media-relative colorimetric",
	2: "saturation",
	3: "ICC-absolute colorimetric",
}

// ICCHeader holds the fixed 128-byte header of an ICC profile
type ICCHeader struct {
	Size            uint32
	PreferredCMM    string
	Version         string
	DeviceClass     string
	ColourSpace     string
	ConnectionSpace string
	Created         time.Time
	Signature       string
	Platform        string
	Embedded        bool
	Independent     bool
	Manufacturer    string
	Model           string
	RenderingIntent string
	Creator         string
}

// ParseICCHeader reads the header of an embedded ICC profile
func ParseICCHeader(b []byte) (*ICCHeader, error) {
	if len(b) < iccHeaderSize {
		return nil, fmt.Errorf("profile of %d bytes is shorter than the %d byte header", len(b), iccHeaderSize)
	}
	be := binary.BigEndian
	h := &ICCHeader{
		Size:            be.Uint32(b[0:4]),
		PreferredCMM:    fourCC(b[4:8]),
		Version:         fmt.Sprintf("%d.%d.%d", b[8], b[9]>>4, b[9]&0x0F),
		ColourSpace:     strings.TrimSpace(fourCC(b[16:20])),
		ConnectionSpace: strings.TrimSpace(fourCC(b[20:24])),
		Signature:       fourCC(b[36:40]),
		Platform:        fourCC(b[40:44]),
		Embedded:        be.Uint32(b[44:48])&0x01 != 0,
		Independent:     be.Uint32(b[44:48])&0x02 == 0,
		Manufacturer:    fourCC(b[48:52]),
		Model:           fourCC(b[52:56]),
		Creator:         fourCC(b[80:84]),
	}
	h.DeviceClass = iccClasses[string(b[12:16])]
	if h.DeviceClass == "" {
		h.DeviceClass = "unrecognized (" + fourCC(b[12:16]) + ")"
	}
	h.RenderingIntent = iccIntents[be.Uint32(b[64:68])]
	if h.RenderingIntent == "" {
		h.RenderingIntent = "unknown"
	}
	y, mo, d := int(be.Uint16(b[24:26])), time.Month(be.Uint16(b[26:28])), int(be.Uint16(b[28:30]))
	hh, mi, ss := int(be.Uint16(b[30:32])), int(be.Uint16(b[32:34])), int(be.Uint16(b[34:36]))
	if y > 0 && mo >= 1 && mo <= 12 && d >= 1 && d <= 31 {
		h.Created = time.Date(y, mo, d, hh, mi, ss, 0, time.UTC)
	}
	return h, nil
}

// fourCC returns a signature field, empty when it is all zero
func fourCC(b []byte) string {
	if binary.BigEndian.Uint32(b) == 0 {
		return ""
	}
	return string(b)
}

func (h *ICCHeader) lines() []string {
	created := "unknown"
	if !h.Created.IsZero() {
		created = h.Created.Format(time.DateTime)
	}
	embedded := "not embedded"
	if h.Embedded {
		embedded = "embedded"
	}
	independent := "can be used independently"
	if !h.Independent {
		independent = "cannot be used independently"
	}
	return []string{
		fmt.Sprintf("Size:  %d", h.Size),
		"Preferred CMM Type:  " + h.PreferredCMM,
		"Version:  " + h.Version,
		"Device Class:  " + h.DeviceClass,
		"Color Space:  " + h.ColourSpace,
		"Connection Space:  " + h.ConnectionSpace,
		"Datetime:  " + created,
		"File Signature:  " + h.Signature,
		"Platform:  " + h.Platform,
		"Flags:  " + embedded + ", " + independent,
		"Device Manufacturer:  " + h.Manufacturer,
		"Device Model:  " + h.Model,
		"Rendering Intent:  " + h.RenderingIntent,
		"Creator:  " + h.Creator,
	}
}

package pathcompression

import (
	"encoding/json"
	"fmt"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"

	"github.com/mythwright/nexus-config-backup/pkg/util"
)

// Method is the per-entry compression applied inside the zip container.
type Method string

const (
	Store   Method = "store"
	Deflate Method = "deflate"
	Zstd    Method = "zstd"
)

var methodToString = map[Method]string{
	Store:   "store",
	Deflate: "deflate",
	Zstd:    "zstd",
}

var stringToMethod map[string]Method

func init() {
	stringToMethod = util.InvertMap(methodToString)
}

func (m Method) String() string {
	if str, ok := methodToString[m]; ok {
		return str
	}
	return fmt.Sprintf("unknown_compression_method(%s)", string(m))
}

// ParseMethod parses a string into a Method. An empty string means Store.
func ParseMethod(s string) (Method, error) {
	if s == "" {
		return Store, nil
	}
	if m, ok := stringToMethod[s]; ok {
		return m, nil
	}
	return "", fmt.Errorf("invalid compression method: %q. Must be 'store', 'deflate', or 'zstd'", s)
}

// zipMethod returns the zip header method id.
func (m Method) zipMethod() uint16 {
	switch m {
	case Deflate:
		return zip.Deflate
	case Zstd:
		return zstd.ZipMethodWinZip
	default:
		return zip.Store
	}
}

// MarshalJSON implements the json.Marshaler interface.
func (m Method) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface.
func (m *Method) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("compression method should be a string, got %s", data)
	}
	method, err := ParseMethod(s)
	if err != nil {
		return err
	}
	*m = method
	return nil
}

// Level represents the desired trade-off between speed and size of the compression.
// It is ignored by Store.
type Level string

const (
	Default Level = "default"
	Fastest Level = "fastest"
	Better  Level = "better"
	Best    Level = "best"
)

// ParseLevel parses a string into a compression Level.
// It defaults to default level if the string is empty.
func ParseLevel(s string) (Level, error) {
	switch Level(s) {
	case "":
		return Default, nil
	case Default, Fastest, Better, Best:
		return Level(s), nil
	}
	return "", fmt.Errorf("invalid compression level: %q. Must be 'default', 'fastest', 'better', or 'best'", s)
}

func (l Level) flateLevel() int {
	switch l {
	case Fastest:
		return flate.BestSpeed
	case Better:
		return 6
	case Best:
		return flate.BestCompression
	default:
		return flate.DefaultCompression
	}
}

func (l Level) zstdLevel() zstd.EncoderLevel {
	switch l {
	case Fastest:
		return zstd.SpeedFastest
	case Better:
		return zstd.SpeedBetterCompression
	case Best:
		return zstd.SpeedBestCompression
	default:
		return zstd.SpeedDefault
	}
}

package styles

import (
	"fmt"
	"hash/crc32"
	"path/filepath"
	"strings"
)

var crcTable = crc32.MakeTable(crc32.Castagnoli)

// ContentHash returns the fixed-width hex CRC32 (Castagnoli) of content.
func ContentHash(content []byte) string {
	return fmt.Sprintf("%08x", crc32.Checksum(content, crcTable))
}

// HashedName builds an output filename from format, which may reference
// {name}, {hash} and {ext}. The extension of an entry point such as
// site.scss is replaced by ".css".
//
//	HashedName("{name}.{hash}{ext}", "site.scss", css) // "site.1a2b3c4d.css"
func HashedName(format, entry string, content []byte) string {
	base := filepath.Base(entry)
	name := strings.TrimSuffix(base, filepath.Ext(base))

	return strings.NewReplacer(
		"{name}", name,
		"{hash}", ContentHash(content),
		"{ext}", ".css",
	).Replace(format)
}

// Package archive reads uploaded import archives and checks that they carry
// the members the import pipeline needs.
package archive

import (
	"archive/zip"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/dvloznov/finance-admin/internal/domain"
)

// Member names expected inside an import archive.
const (
	UserDataMember     = "userData.json"
	TransactionsMember = "transactions.json"
	AvatarMember       = "avatar.png"
)

// Default limits applied when a Limits field is zero.
const (
	DefaultMaxArchiveBytes = 32 << 20
	DefaultMaxMemberBytes  = 16 << 20
	DefaultMaxEntries      = 64
)

// Limits bounds the resources a single archive may consume.
type Limits struct {
	MaxArchiveBytes int64 // size of the ZIP container
	MaxMemberBytes  int64 // uncompressed size of any member we read
	MaxEntries      int   // number of entries in the central directory
}

func (l Limits) withDefaults() Limits {
	if l.MaxArchiveBytes <= 0 {
		l.MaxArchiveBytes = DefaultMaxArchiveBytes
	}
	if l.MaxMemberBytes <= 0 {
		l.MaxMemberBytes = DefaultMaxMemberBytes
	}
	if l.MaxEntries <= 0 {
		l.MaxEntries = DefaultMaxEntries
	}
	return l
}

// Contents holds the raw bytes of the archive members. Avatar is nil when the
// archive has no avatar.png.
type Contents struct {
	UserData     []byte
	Transactions []byte
	Avatar       []byte
	Checksum     string // hex sha256 of the archive bytes
}

// HasAvatar reports whether the archive carried an avatar.
func (c *Contents) HasAvatar() bool {
	return c.Avatar != nil
}

// ReadAll buffers r (up to the archive limit) and reads it as an archive.
func ReadAll(r io.Reader, limits Limits) (*Contents, error) {
	limits = limits.withDefaults()

	data, err := io.ReadAll(io.LimitReader(r, limits.MaxArchiveBytes+1))
	if err != nil {
		return nil, fmt.Errorf("ReadAll: reading archive: %w", err)
	}
	if int64(len(data)) > limits.MaxArchiveBytes {
		return nil, &domain.ValidationError{Message: fmt.Sprintf("archive exceeds %d bytes", limits.MaxArchiveBytes)}
	}

	return Read(bytes.NewReader(data), int64(len(data)), limits)
}

// Read validates the ZIP container in r and extracts the import members.
// Nothing is persisted here; the caller decides what to do with the contents.
func Read(r io.ReaderAt, size int64, limits Limits) (*Contents, error) {
	limits = limits.withDefaults()

	if size > limits.MaxArchiveBytes {
		return nil, &domain.ValidationError{Message: fmt.Sprintf("archive exceeds %d bytes", limits.MaxArchiveBytes)}
	}

	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, &domain.MalformedArchiveError{Err: err}
	}
	if len(zr.File) > limits.MaxEntries {
		return nil, &domain.ValidationError{Message: fmt.Sprintf("archive has %d entries, limit is %d", len(zr.File), limits.MaxEntries)}
	}

	members := make(map[string]*zip.File, 3)
	for _, f := range zr.File {
		name, ok := memberName(f)
		if !ok {
			continue
		}
		if _, dup := members[name]; dup {
			return nil, &domain.ValidationError{Message: "duplicate " + name}
		}
		members[name] = f
	}

	var missing []string
	for _, required := range []string{UserDataMember, TransactionsMember} {
		if _, ok := members[required]; !ok {
			missing = append(missing, required)
		}
	}
	if len(missing) > 0 {
		return nil, &domain.ValidationError{Message: "missing " + strings.Join(missing, ", ")}
	}

	checksum, err := sectionChecksum(r, size)
	if err != nil {
		return nil, &domain.MalformedArchiveError{Err: err}
	}
	contents := &Contents{Checksum: checksum}

	if contents.UserData, err = readMember(members[UserDataMember], limits.MaxMemberBytes); err != nil {
		return nil, err
	}
	if contents.Transactions, err = readMember(members[TransactionsMember], limits.MaxMemberBytes); err != nil {
		return nil, err
	}
	if f, ok := members[AvatarMember]; ok {
		if contents.Avatar, err = readMember(f, limits.MaxMemberBytes); err != nil {
			return nil, err
		}
	}

	return contents, nil
}

// memberName maps a ZIP entry to one of the known member names. Directory
// entries and macOS metadata are skipped.
func memberName(f *zip.File) (string, bool) {
	if f.FileInfo().IsDir() {
		return "", false
	}
	name := strings.ReplaceAll(f.Name, "\\", "/")
	if strings.HasPrefix(name, "__MACOSX/") {
		return "", false
	}
	base := path.Base(name)
	if strings.HasPrefix(base, "._") {
		return "", false
	}
	switch base {
	case UserDataMember, TransactionsMember, AvatarMember:
		return base, true
	}
	return "", false
}

func readMember(f *zip.File, maxBytes int64) ([]byte, error) {
	name := path.Base(f.Name)
	if f.UncompressedSize64 > uint64(maxBytes) {
		return nil, &domain.ValidationError{Message: fmt.Sprintf("%s exceeds %d bytes", name, maxBytes)}
	}

	rc, err := f.Open()
	if err != nil {
		return nil, &domain.MalformedArchiveError{Err: fmt.Errorf("opening %s: %w", name, err)}
	}
	defer rc.Close()

	// The header size can lie; cap what we actually inflate.
	data, err := io.ReadAll(io.LimitReader(rc, maxBytes+1))
	if err != nil {
		return nil, &domain.MalformedArchiveError{Err: fmt.Errorf("reading %s: %w", name, err)}
	}
	if int64(len(data)) > maxBytes {
		return nil, &domain.ValidationError{Message: fmt.Sprintf("%s exceeds %d bytes", name, maxBytes)}
	}

	return data, nil
}

func sectionChecksum(r io.ReaderAt, size int64) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, io.NewSectionReader(r, 0, size)); err != nil {
		return "", fmt.Errorf("hashing archive: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

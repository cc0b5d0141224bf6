package settings

import "strconv"

// HashType is the content hash used by the duplicate finder
type HashType int

const (
	HashBlake3 HashType = iota
	HashCRC32
	HashXXH3
)

func (h HashType) String() string {
	switch h {
	case HashCRC32:
		return "crc32"
	case HashXXH3:
		return "xxh3"
	}
	return "blake3"
}

// CheckMethod is how the duplicate finder decides files match
type CheckMethod int

const (
	CheckHash CheckMethod = iota
	CheckSize
	CheckName
	CheckSizeAndName
)

// SearchMode selects the biggest or the smallest files
type SearchMode int

const (
	BiggestFiles SearchMode = iota
	SmallestFiles
)

// ImageHashAlg is the perceptual hash algorithm for similar images
type ImageHashAlg int

const (
	HashAlgMean ImageHashAlg = iota
	HashAlgGradient
	HashAlgBlockHash
	HashAlgVertGradient
	HashAlgDoubleGradient
	HashAlgMedian
)

// ResizeAlgorithm is the filter images are scaled with before hashing
type ResizeAlgorithm int

const (
	ResizeLanczos3 ResizeAlgorithm = iota
	ResizeGaussian
	ResizeCatmullRom
	ResizeTriangle
	ResizeNearest
)

// AudioCheckType is how music files are compared
type AudioCheckType int

const (
	AudioTags AudioCheckType = iota
	AudioContent
)

// MusicSimilarity is a set of tag fields that must match
type MusicSimilarity uint8

const (
	MusicTitle MusicSimilarity = 1 << iota
	MusicArtist
	MusicYear
	MusicBitrate
	MusicGenre
	MusicLength
)

// Has reports whether every bit of f is set
func (m MusicSimilarity) Has(f MusicSimilarity) bool {
	return m&f == f
}

// CheckedTypes is the set of file kinds the broken file checker looks at
type CheckedTypes uint8

const (
	CheckedAudio CheckedTypes = 1 << iota
	CheckedPDF
	CheckedArchive
	CheckedImage
)

// Has reports whether every bit of f is set
func (c CheckedTypes) Has(f CheckedTypes) bool {
	return c&f == f
}

// DefaultHashSize is used when the hash size string does not parse
const DefaultHashSize = 16

// ParseHashType maps "CRC32" and "XXH3"; anything else is Blake3
func ParseHashType(v string) HashType {
	switch v {
	case "CRC32":
		return HashCRC32
	case "XXH3":
		return HashXXH3
	}
	return HashBlake3
}

// ParseCheckMethod maps "Size", "Name" and "SizeAndName"; anything else is Hash
func ParseCheckMethod(v string) CheckMethod {
	switch v {
	case "Size":
		return CheckSize
	case "Name":
		return CheckName
	case "SizeAndName":
		return CheckSizeAndName
	}
	return CheckHash
}

// ParseSearchMode maps "SmallestFiles"; anything else is BiggestFiles
func ParseSearchMode(v string) SearchMode {
	if v == "SmallestFiles" {
		return SmallestFiles
	}
	return BiggestFiles
}

// ParseImageHashAlg maps the known names; anything else is Mean
func ParseImageHashAlg(v string) ImageHashAlg {
	switch v {
	case "Gradient":
		return HashAlgGradient
	case "BlockHash":
		return HashAlgBlockHash
	case "VertGradient":
		return HashAlgVertGradient
	case "DoubleGradient":
		return HashAlgDoubleGradient
	case "Median":
		return HashAlgMedian
	}
	return HashAlgMean
}

// ParseResizeAlgorithm maps the known names; anything else is Lanczos3
func ParseResizeAlgorithm(v string) ResizeAlgorithm {
	switch v {
	case "Gaussian":
		return ResizeGaussian
	case "CatmullRom":
		return ResizeCatmullRom
	case "Triangle":
		return ResizeTriangle
	case "Nearest":
		return ResizeNearest
	}
	return ResizeLanczos3
}

// ParseHashSize parses the image hash size, falling back to DefaultHashSize
func ParseHashSize(v string) uint8 {
	n, err := strconv.ParseUint(v, 10, 8)
	if err != nil {
		return DefaultHashSize
	}
	return uint8(n)
}

// ParseAudioCheckType maps "Fingerprint" to content comparison; anything
// else compares tags.
func ParseAudioCheckType(v string) AudioCheckType {
	if v == "Fingerprint" {
		return AudioContent
	}
	return AudioTags
}

// HashType returns the parsed duplicate hash type
func (s Settings) HashType() HashType { return ParseHashType(s.DuplicatesSubAvailableHashType) }

// CheckMethod returns the parsed duplicate check method
func (s Settings) CheckMethod() CheckMethod { return ParseCheckMethod(s.DuplicatesSubCheckMethod) }

// SearchMode returns the parsed big files mode
func (s Settings) SearchMode() SearchMode { return ParseSearchMode(s.BiggestFilesSubMethod) }

// ImageHashAlg returns the parsed image hash algorithm
func (s Settings) ImageHashAlg() ImageHashAlg { return ParseImageHashAlg(s.SimilarImagesSubHashAlg) }

// ResizeAlgorithm returns the parsed resize filter
func (s Settings) ResizeAlgorithm() ResizeAlgorithm {
	return ParseResizeAlgorithm(s.SimilarImagesSubResizeAlgorithm)
}

// ImageHashSize returns the parsed image hash size
func (s Settings) ImageHashSize() uint8 { return ParseHashSize(s.SimilarImagesSubHashSize) }

// AudioCheckType returns the parsed music comparison mode
func (s Settings) AudioCheckType() AudioCheckType {
	return ParseAudioCheckType(s.SimilarMusicSubAudioCheckType)
}

// MusicSimilarity collects the selected tag fields, defaulting to title and
// artist when none are selected.
func (s Settings) MusicSimilarity() MusicSimilarity {
	var m MusicSimilarity
	if s.SimilarMusicSubTitle {
		m |= MusicTitle
	}
	if s.SimilarMusicSubArtist {
		m |= MusicArtist
	}
	if s.SimilarMusicSubYear {
		m |= MusicYear
	}
	if s.SimilarMusicSubBitrate {
		m |= MusicBitrate
	}
	if s.SimilarMusicSubGenre {
		m |= MusicGenre
	}
	if s.SimilarMusicSubLength {
		m |= MusicLength
	}
	if m == 0 {
		m = MusicTitle | MusicArtist
	}
	return m
}

// CheckedTypes collects the selected broken file kinds, defaulting to audio
// when none are selected.
func (s Settings) CheckedTypes() CheckedTypes {
	var c CheckedTypes
	if s.BrokenFilesSubAudio {
		c |= CheckedAudio
	}
	if s.BrokenFilesSubPdf {
		c |= CheckedPDF
	}
	if s.BrokenFilesSubArchive {
		c |= CheckedArchive
	}
	if s.BrokenFilesSubImage {
		c |= CheckedImage
	}
	if c == 0 {
		c = CheckedAudio
	}
	return c
}

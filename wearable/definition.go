package wearable

import (
	"path"
	"slices"
	"strings"
)

// Definition is a wearable entity as served by the content servers.
type Definition struct {
	// ID is the entity id, the content hash of the entity file.
	ID       string        `json:"id"`
	Pointers []string      `json:"pointers,omitempty"`
	Content  []ContentFile `json:"content"`
	// ContentDownloadURL is set when the files are downloaded raw from a
	// content server instead of as platform bundles.
	ContentDownloadURL string `json:"contentDownloadUrl,omitempty"`
	// ManifestVersion is set when the bundle version is known without fetching the manifest.
	ManifestVersion string   `json:"manifestVersion,omitempty"`
	Metadata        Metadata `json:"metadata"`
}

// ContentFile maps a file name of the entity to its content hash.
type ContentFile struct {
	File string `json:"file"`
	Hash string `json:"hash"`
}

type Metadata struct {
	ID          string `json:"id"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	Thumbnail   string `json:"thumbnail,omitempty"`
	Data        Data   `json:"data"`
}

type Data struct {
	Category        Category         `json:"category"`
	Tags            []string         `json:"tags,omitempty"`
	Hides           []Category       `json:"hides,omitempty"`
	Replaces        []Category       `json:"replaces,omitempty"`
	Representations []Representation `json:"representations"`
}

// Representation lists the files used for a set of body shapes.
type Representation struct {
	BodyShapes       []string   `json:"bodyShapes"`
	MainFile         string     `json:"mainFile"`
	Contents         []string   `json:"contents"`
	OverrideHides    []Category `json:"overrideHides,omitempty"`
	OverrideReplaces []Category `json:"overrideReplaces,omitempty"`
}

// Supports reports whether the representation is meant for bs.
func (r *Representation) Supports(bs BodyShape) bool {
	return slices.ContainsFunc(r.BodyShapes, func(s string) bool { return NewURN(s) == bs.URN() })
}

// URN returns the shortened URN of the definition.
func (d *Definition) URN() URN {
	return NewURN(d.Metadata.ID).Shorten()
}

// Category returns the category of the definition.
func (d *Definition) Category() Category {
	return d.Metadata.Data.Category
}

// Representation returns the representation used for bs.
func (d *Definition) Representation(bs BodyShape) (*Representation, bool) {
	for i := range d.Metadata.Data.Representations {
		if d.Metadata.Data.Representations[i].Supports(bs) {
			return &d.Metadata.Data.Representations[i], true
		}
	}
	return nil, false
}

// ContentHash returns the hash of a file of the entity.
func (d *Definition) ContentHash(file string) (string, bool) {
	for _, c := range d.Content {
		if strings.EqualFold(c.File, file) {
			return c.Hash, true
		}
	}
	return "", false
}

// MainFile returns the name of the main file for bs.
func (d *Definition) MainFile(bs BodyShape) (string, bool) {
	rep, ok := d.Representation(bs)
	if !ok || rep.MainFile == "" {
		return "", false
	}
	return rep.MainFile, true
}

// MainFileHash returns the content hash of the main file for bs.
func (d *Definition) MainFileHash(bs BodyShape) (string, bool) {
	file, ok := d.MainFile(bs)
	if !ok {
		return "", false
	}
	return d.ContentHash(file)
}

// MaskFile returns the name of the mask texture of a facial feature for bs.
func (d *Definition) MaskFile(bs BodyShape) (string, bool) {
	rep, ok := d.Representation(bs)
	if !ok || !d.Category().IsFacialFeature() {
		return "", false
	}
	for _, file := range rep.Contents {
		if strings.EqualFold(file, rep.MainFile) {
			continue
		}
		if strings.HasSuffix(strings.ToLower(file), "_mask.png") {
			return file, true
		}
	}
	return "", false
}

// MaskHash returns the content hash of the mask texture of a facial feature for bs.
func (d *Definition) MaskHash(bs BodyShape) (string, bool) {
	file, ok := d.MaskFile(bs)
	if !ok {
		return "", false
	}
	return d.ContentHash(file)
}

// IsUnisex reports whether the definition has a representation for both body shapes.
func (d *Definition) IsUnisex() bool {
	_, male := d.Representation(Male)
	_, female := d.Representation(Female)
	return male && female
}

// HasSameModelsForAllGenders reports whether both body shapes use the same
// files, so a payload loaded for one shape serves the other as well.
func (d *Definition) HasSameModelsForAllGenders() bool {
	if !d.IsUnisex() {
		return false
	}
	maleMain, _ := d.MainFileHash(Male)
	femaleMain, _ := d.MainFileHash(Female)
	maleMask, _ := d.MaskHash(Male)
	femaleMask, _ := d.MaskHash(Female)
	return maleMain != "" && maleMain == femaleMain && maleMask == femaleMask
}

// HiddenCategories returns the categories the definition hides when worn with bs.
// Representation overrides win over the definition wide lists.
func (d *Definition) HiddenCategories(bs BodyShape) []Category {
	hides, replaces := d.Metadata.Data.Hides, d.Metadata.Data.Replaces
	if rep, ok := d.Representation(bs); ok {
		if len(rep.OverrideHides) > 0 {
			hides = rep.OverrideHides
		}
		if len(rep.OverrideReplaces) > 0 {
			replaces = rep.OverrideReplaces
		}
	}
	hidden := make([]Category, 0, len(hides)+len(replaces))
	hidden = append(hidden, hides...)
	for _, c := range replaces {
		if !slices.Contains(hidden, c) {
			hidden = append(hidden, c)
		}
	}
	if d.Category() == CategorySkin {
		for _, c := range skinHides {
			if !slices.Contains(hidden, c) {
				hidden = append(hidden, c)
			}
		}
	}
	return slices.DeleteFunc(hidden, func(c Category) bool { return c == d.Category() })
}

// AssetKind is the type of payload behind a file.
type AssetKind string

const (
	AssetKindBundle  AssetKind = "bundle"
	AssetKindModel   AssetKind = "model"
	AssetKindTexture AssetKind = "texture"
)

// KindOf derives the asset kind of a raw file from its extension.
func KindOf(file string) AssetKind {
	switch strings.ToLower(path.Ext(file)) {
	case ".png", ".jpg", ".jpeg", ".ktx2":
		return AssetKindTexture
	case ".glb", ".gltf":
		return AssetKindModel
	default:
		return AssetKindBundle
	}
}

package wearable

// Category is the slot of the avatar a wearable occupies.
type Category string

const (
	CategoryBodyShape  Category = "body_shape"
	CategorySkin       Category = "skin"
	CategoryUpperBody  Category = "upper_body"
	CategoryLowerBody  Category = "lower_body"
	CategoryFeet       Category = "feet"
	CategoryHair       Category = "hair"
	CategoryFacialHair Category = "facial_hair"
	CategoryEyebrows   Category = "eyebrows"
	CategoryEyes       Category = "eyes"
	CategoryMouth      Category = "mouth"
	CategoryHat        Category = "hat"
	CategoryHelmet     Category = "helmet"
	CategoryMask       Category = "mask"
	CategoryEyewear    Category = "eyewear"
	CategoryEarring    Category = "earring"
	CategoryTiara      Category = "tiara"
	CategoryTopHead    Category = "top_head"
	CategoryHandsWear  Category = "hands_wear"
	CategoryHead       Category = "head"
	CategoryHands      Category = "hands"
)

// CategoryPriority orders categories for hiding: a wearable may only hide
// categories that come after its own.
var CategoryPriority = []Category{
	CategorySkin,
	CategoryUpperBody,
	CategoryHandsWear,
	CategoryLowerBody,
	CategoryFeet,
	CategoryHelmet,
	CategoryHat,
	CategoryTopHead,
	CategoryMask,
	CategoryEyewear,
	CategoryEarring,
	CategoryTiara,
	CategoryHair,
	CategoryEyebrows,
	CategoryEyes,
	CategoryMouth,
	CategoryFacialHair,
	CategoryBodyShape,
}

// skinHides lists what a skin covers implicitly.
var skinHides = []Category{
	CategoryHead, CategoryHair, CategoryFacialHair, CategoryMouth, CategoryEyebrows, CategoryEyes,
	CategoryUpperBody, CategoryLowerBody, CategoryFeet, CategoryHands, CategoryHandsWear,
	CategoryMask, CategoryEyewear, CategoryEarring, CategoryTiara, CategoryTopHead, CategoryHat, CategoryHelmet,
}

// IsFacialFeature reports whether the category is painted on the head as a
// texture with an optional mask rather than rendered as a model.
func (c Category) IsFacialFeature() bool {
	return c == CategoryEyebrows || c == CategoryEyes || c == CategoryMouth
}

// SlotCount is the number of asset slots a wearable of this category needs.
func (c Category) SlotCount() int {
	if c.IsFacialFeature() {
		return 2
	}
	return 1
}

func (c Category) priority() int {
	for i, p := range CategoryPriority {
		if p == c {
			return i
		}
	}
	return len(CategoryPriority)
}

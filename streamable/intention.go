package streamable

import "fmt"

// Intention describes what to load. Two intentions are equal when their keys
// are equal; the cancellation handle is the context a promise is created with
// and never part of the intention.
type Intention interface {
	Key() string
}

// Partition is the scheduling priority of a load. Bucket 0 is the most
// important one, Behind marks content the consumer cannot currently see.
type Partition struct {
	Bucket uint8
	Behind bool
}

// TopPriority is the partition used for loads that gate everything else.
var TopPriority = Partition{}

// Less reports whether p should be scheduled before other.
func (p Partition) Less(other Partition) bool {
	if p.Behind != other.Behind {
		return !p.Behind
	}
	return p.Bucket < other.Bucket
}

func (p Partition) String() string {
	if p.Behind {
		return fmt.Sprintf("%d-behind", p.Bucket)
	}
	return fmt.Sprintf("%d", p.Bucket)
}

// KeyIntention is an Intention that is nothing but its key.
type KeyIntention string

func (k KeyIntention) Key() string { return string(k) }

package task

// Bucket is one of the five agenda time buckets.
type Bucket string

const (
	BucketToday    Bucket = "today"
	BucketTomorrow Bucket = "tomorrow"
	BucketThisWeek Bucket = "this_week"
	BucketUpcoming Bucket = "upcoming"
	BucketSomeday  Bucket = "someday"
)

// Buckets lists all agenda buckets in display order.
var Buckets = []Bucket{BucketToday, BucketTomorrow, BucketThisWeek, BucketUpcoming, BucketSomeday}

// Routing assigns every candidate id to exactly one bucket. The map shape
// makes the partition disjoint by construction; totality (every candidate
// present) is checked by Covers.
type Routing map[string]Bucket

// Covers reports whether every given candidate id has a bucket assignment.
func (r Routing) Covers(candidates []Candidate) bool {
	for _, c := range candidates {
		if _, ok := r[c.ID]; !ok {
			return false
		}
	}
	return true
}

// IDs returns the candidate ids routed to the given bucket, in no
// particular order.
func (r Routing) IDs(b Bucket) []string {
	var ids []string
	for id, bucket := range r {
		if bucket == b {
			ids = append(ids, id)
		}
	}
	return ids
}

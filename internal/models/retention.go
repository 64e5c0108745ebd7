package models

import "strconv"

// KeepBuckets lists the retention buckets in their fixed priority order.
var KeepBuckets = []string{"last", "hourly", "daily", "weekly", "monthly", "yearly"}

// IsKeepBucket reports whether name is a known retention bucket.
func IsKeepBucket(name string) bool {
	for _, b := range KeepBuckets {
		if b == name {
			return true
		}
	}
	return false
}

// KeepRule is a single bucket with its retained snapshot count.
type KeepRule struct {
	Bucket string
	Count  int
}

// RetentionSource tells where a RetentionPolicy came from.
type RetentionSource string

// Retention sources.
const (
	RetentionFromConfig RetentionSource = "config"
	RetentionFromEnv    RetentionSource = "env"
	RetentionNone       RetentionSource = "none"
)

// RetentionPolicy is an ordered list of keep rules.
type RetentionPolicy struct {
	Rules  []KeepRule
	Source RetentionSource
}

// Empty reports whether the policy has no bucket, in which case nothing is forgotten.
func (p RetentionPolicy) Empty() bool {
	return len(p.Rules) == 0
}

// ForgetArgs renders the policy as restic forget flags.
func (p RetentionPolicy) ForgetArgs() []string {
	args := make([]string, 0, len(p.Rules)*2)
	for _, r := range p.Rules {
		args = append(args, "--keep-"+r.Bucket, strconv.Itoa(r.Count))
	}
	return args
}

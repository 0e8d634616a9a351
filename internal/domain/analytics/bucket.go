package analytics

import "time"

// Age groups in display order.
var AgeGroups = []string{"0-17", "18-35", "36-55", "56+"}

// Aging buckets in display order.
var AgingBuckets = []string{"current", "1-30", "31-60", "61-90", ">90"}

// AgeOn returns the age in whole years of someone born on dob at the calendar
// date of today. Both are compared as UTC dates.
func AgeOn(dob, today time.Time) int {
	dob = dob.UTC()
	today = today.UTC()
	age := today.Year() - dob.Year()
	if today.Month() < dob.Month() || (today.Month() == dob.Month() && today.Day() < dob.Day()) {
		age--
	}
	return age
}

// AgeGroup maps an age in years to its bucket.
func AgeGroup(age int) string {
	switch {
	case age <= 17:
		return "0-17"
	case age <= 35:
		return "18-35"
	case age <= 55:
		return "36-55"
	default:
		return "56+"
	}
}

// AgingBucket classifies an open balance by how overdue it is at now. A
// missing due date, or one not yet reached, is current.
func AgingBucket(due *time.Time, now time.Time) string {
	if due == nil || !due.Before(now) {
		return "current"
	}
	days := int(now.Sub(*due) / (24 * time.Hour))
	switch {
	case days <= 30:
		return "1-30"
	case days <= 60:
		return "31-60"
	case days <= 90:
		return "61-90"
	default:
		return ">90"
	}
}

package duplicates

import "github.com/warp/enrollment-engine/domain"

// MergeInto copies every field that is nil on keep from the first donor that
// has it set. Fields already set on keep are never overwritten. It returns
// the merged record and the names of the fields that were filled.
func MergeInto(keep domain.Student, donors ...domain.Student) (domain.Student, []string) {
	var filled []string

	fillString := func(name string, dst **string, get func(domain.Student) *string) {
		if *dst != nil {
			return
		}
		for _, d := range donors {
			if v := get(d); v != nil {
				cp := *v
				*dst = &cp
				filled = append(filled, name)
				return
			}
		}
	}

	fillString("email", &keep.Email, func(s domain.Student) *string { return s.Email })
	fillString("phone", &keep.Phone, func(s domain.Student) *string { return s.Phone })
	fillString("educationLevel", &keep.EducationLevel, func(s domain.Student) *string { return s.EducationLevel })
	fillString("gradeLevel", &keep.GradeLevel, func(s domain.Student) *string { return s.GradeLevel })
	fillString("schoolName", &keep.SchoolName, func(s domain.Student) *string { return s.SchoolName })
	fillString("batchId", &keep.BatchID, func(s domain.Student) *string { return s.BatchID })

	if keep.DateOfBirth == nil {
		for _, d := range donors {
			if d.DateOfBirth != nil {
				dob := *d.DateOfBirth
				keep.DateOfBirth = &dob
				filled = append(filled, "dateOfBirth")
				break
			}
		}
	}

	if keep.BillingType == nil {
		for _, d := range donors {
			if d.BillingType != nil {
				bt := *d.BillingType
				keep.BillingType = &bt
				filled = append(filled, "billingType")
				break
			}
		}
	}

	return keep, filled
}

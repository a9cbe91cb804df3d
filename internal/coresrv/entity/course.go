package entity

import (
	"fmt"

	"github.com/web-cat/core/internal/coresrv/store"
)

// Course wraps a Course record with typed accessors.
type Course struct {
	store.EnterpriseObject
}

// AsCourse wraps an enterprise object known to be a Course record.
func AsCourse(o store.EnterpriseObject) Course {
	return Course{o}
}

// NewCourse creates a Course record bound to ec.
func NewCourse(ec store.EditingContext, department string, number int, name string) (Course, error) {
	obj, err := ec.Insert(TypeCourse)
	if err != nil {
		return Course{}, err
	}
	c := AsCourse(obj)
	if err := c.Set(KeyDepartment, department); err != nil {
		return Course{}, err
	}
	if err := c.Set(KeyCourseNumber, float64(number)); err != nil {
		return Course{}, err
	}
	if err := c.Set(KeyCourseName, name); err != nil {
		return Course{}, err
	}
	return c, nil
}

func (c Course) Department() string {
	return stringAttr(c, KeyDepartment)
}

func (c Course) Number() int {
	return intAttr(c, KeyCourseNumber)
}

func (c Course) Name() string {
	return stringAttr(c, KeyCourseName)
}

// DeptNumber returns the compact course designation, e.g. "CS 3114".
func (c Course) DeptNumber() string {
	return fmt.Sprintf("%s %d", c.Department(), c.Number())
}

// CourseOffering wraps a CourseOffering record with typed accessors.
type CourseOffering struct {
	store.EnterpriseObject
}

// AsCourseOffering wraps an enterprise object known to be a CourseOffering
// record.
func AsCourseOffering(o store.EnterpriseObject) CourseOffering {
	return CourseOffering{o}
}

// NewCourseOffering creates a CourseOffering record bound to ec for the
// given course and semester.
func NewCourseOffering(ec store.EditingContext, course Course, semester Semester, crn string) (CourseOffering, error) {
	obj, err := ec.Insert(TypeCourseOffering)
	if err != nil {
		return CourseOffering{}, err
	}
	o := AsCourseOffering(obj)
	if err := o.Set(KeyCRN, crn); err != nil {
		return CourseOffering{}, err
	}
	if err := o.AddRelated(RelCourse, course.EnterpriseObject); err != nil {
		return CourseOffering{}, err
	}
	if err := o.AddRelated(RelSemester, semester.EnterpriseObject); err != nil {
		return CourseOffering{}, err
	}
	return o, nil
}

func (o CourseOffering) CRN() string {
	return stringAttr(o, KeyCRN)
}

func (o CourseOffering) Label() string {
	return stringAttr(o, KeyLabel)
}

// SubdirName returns the sanitized directory name for this offering's
// submissions, derived from the CRN.
func (o CourseOffering) SubdirName() string {
	return SanitizeSubdirName(o.CRN())
}

// Instructors returns the offering's instructors.
func (o CourseOffering) Instructors() ([]User, error) {
	return relatedUsers(o, RelInstructors)
}

// Students returns the enrolled students.
func (o CourseOffering) Students() ([]User, error) {
	return relatedUsers(o, RelStudents)
}

// Graders returns the offering's graders.
func (o CourseOffering) Graders() ([]User, error) {
	return relatedUsers(o, RelGraders)
}

func relatedUsers(o store.EnterpriseObject, key string) ([]User, error) {
	related, err := o.Related(key)
	if err != nil {
		return nil, err
	}
	out := make([]User, 0, len(related))
	for _, r := range related {
		out = append(out, AsUser(r))
	}
	return out, nil
}

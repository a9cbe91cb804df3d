package entity

import (
	"fmt"

	"github.com/web-cat/core/internal/coresrv/store"
)

// Season names in academic order.
const (
	SeasonWinter = "Winter"
	SeasonSpring = "Spring"
	SeasonSummer = "Summer"
	SeasonFall   = "Fall"
)

// Semester wraps a Semester record with typed accessors.
type Semester struct {
	store.EnterpriseObject
}

// AsSemester wraps an enterprise object known to be a Semester record.
func AsSemester(o store.EnterpriseObject) Semester {
	return Semester{o}
}

// NewSemester creates a Semester record bound to ec.
func NewSemester(ec store.EditingContext, season string, year int) (Semester, error) {
	obj, err := ec.Insert(TypeSemester)
	if err != nil {
		return Semester{}, err
	}
	s := AsSemester(obj)
	if err := s.Set(KeySeason, season); err != nil {
		return Semester{}, err
	}
	if err := s.Set(KeyYear, float64(year)); err != nil {
		return Semester{}, err
	}
	return s, nil
}

func (s Semester) Season() string {
	return stringAttr(s, KeySeason)
}

func (s Semester) Year() int {
	return intAttr(s, KeyYear)
}

// Name returns the displayable semester name, e.g. "Fall 2025".
func (s Semester) Name() string {
	return fmt.Sprintf("%s %d", s.Season(), s.Year())
}

// DirName returns the sanitized directory name for this semester,
// e.g. "Fall2025". Submission paths have the shape
// <root>/<domainSubdir>/<semesterDirName>/<crnSubdirName>/...
func (s Semester) DirName() string {
	return SanitizeSubdirName(fmt.Sprintf("%s%d", s.Season(), s.Year()))
}

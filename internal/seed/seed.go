// Package seed loads YAML fixtures describing groups with their students,
// sessions and assessments, and dispatches them through the service.
package seed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"

	"classledger/internal/store"
	"classledger/pkg/domain"
)

// File is the root of a fixture document.
type File struct {
	Groups []Group `yaml:"groups"`
}

// Group declares a group and what belongs to it.
type Group struct {
	Name        string       `yaml:"name"`
	Description string       `yaml:"description"`
	Students    []Student    `yaml:"students"`
	Sessions    []Session    `yaml:"sessions"`
	Assessments []Assessment `yaml:"assessments"`
}

// Student declares a member. Students with the same full name across groups
// are created once and linked to each group.
type Student struct {
	FullName    string `yaml:"fullName"`
	ContactInfo string `yaml:"contactInfo"`
	ParentPhone string `yaml:"parentPhone"`
	Notes       string `yaml:"notes"`
}

// Session declares a scheduled session.
type Session struct {
	DateTime time.Time `yaml:"dateTime"`
	Topic    string    `yaml:"topic"`
}

// Assessment declares an assessment.
type Assessment struct {
	Name     string    `yaml:"name"`
	MaxScore float64   `yaml:"maxScore"`
	Date     time.Time `yaml:"date"`
}

// Load decodes a fixture document. Unknown keys are rejected.
func Load(r io.Reader) (File, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var f File
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return File{}, nil
		}
		return File{}, fmt.Errorf("decode seed: %w", err)
	}
	return f, nil
}

// Service is the subset of core.Service used by Apply.
type Service interface {
	CreateGroup(ctx context.Context, g domain.Group) (domain.Group, error)
	CreateStudent(ctx context.Context, s domain.Student) (domain.Student, error)
	AddStudentToGroup(ctx context.Context, studentID, groupID string) (store.Outcome, error)
	CreateSession(ctx context.Context, s domain.Session) (domain.Session, error)
	CreateAssessment(ctx context.Context, a domain.Assessment) (domain.Assessment, error)
}

// Created lists the ids produced by Apply.
type Created struct {
	Groups      map[string]string `json:"groups"`
	Students    map[string]string `json:"students"`
	Sessions    []string          `json:"sessions"`
	Assessments []string          `json:"assessments"`
}

// Apply dispatches f in dependency order: group, students and links,
// sessions, assessments.
func Apply(ctx context.Context, svc Service, f File) (Created, error) {
	out := Created{Groups: map[string]string{}, Students: map[string]string{}}
	for _, g := range f.Groups {
		group, err := svc.CreateGroup(ctx, domain.Group{Name: g.Name, Description: g.Description})
		if err != nil {
			return out, fmt.Errorf("group %q: %w", g.Name, err)
		}
		out.Groups[g.Name] = group.ID

		for _, s := range g.Students {
			id, ok := out.Students[s.FullName]
			if !ok {
				st, err := svc.CreateStudent(ctx, domain.Student{
					FullName:    s.FullName,
					ContactInfo: s.ContactInfo,
					ParentPhone: s.ParentPhone,
					Notes:       s.Notes,
				})
				if err != nil {
					return out, fmt.Errorf("group %q: student %q: %w", g.Name, s.FullName, err)
				}
				id = st.ID
				out.Students[s.FullName] = id
			}
			if _, err := svc.AddStudentToGroup(ctx, id, group.ID); err != nil {
				return out, fmt.Errorf("group %q: link %q: %w", g.Name, s.FullName, err)
			}
		}
		for _, s := range g.Sessions {
			sess, err := svc.CreateSession(ctx, domain.Session{GroupID: group.ID, DateTime: s.DateTime, Topic: s.Topic})
			if err != nil {
				return out, fmt.Errorf("group %q: session %s: %w", g.Name, s.DateTime.Format(time.RFC3339), err)
			}
			out.Sessions = append(out.Sessions, sess.ID)
		}
		for _, a := range g.Assessments {
			as, err := svc.CreateAssessment(ctx, domain.Assessment{GroupID: group.ID, Name: a.Name, MaxScore: a.MaxScore, Date: a.Date})
			if err != nil {
				return out, fmt.Errorf("group %q: assessment %q: %w", g.Name, a.Name, err)
			}
			out.Assessments = append(out.Assessments, as.ID)
		}
	}
	return out, nil
}

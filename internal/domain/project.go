package domain

import (
	"context"
	"fmt"
	"time"
)

// Task decides how YOLO label lines of a project are interpreted
type Task string

const (
	TaskDetect   Task = "detect"
	TaskSegment  Task = "segment"
	TaskPose     Task = "pose"
	TaskOBB      Task = "obb"
	TaskClassify Task = "classify"
)

// ParseTask validates a task name. An empty name means detect.
func ParseTask(s string) (Task, error) {
	switch t := Task(s); t {
	case "":
		return TaskDetect, nil
	case TaskDetect, TaskSegment, TaskPose, TaskOBB, TaskClassify:
		return t, nil
	}
	return "", fmt.Errorf("task %q: %w", s, ErrMalformedInput)
}

// AnnotationType is the annotation kind produced by the task
func (t Task) AnnotationType() AnnotationType {
	switch t {
	case TaskSegment:
		return TypePolygon
	case TaskPose:
		return TypeKeypoint
	case TaskOBB:
		return TypeOBB
	case TaskClassify:
		return TypeClassify
	default:
		return TypeBBox
	}
}

// AngleUnit is the OBB angle convention of a project
type AngleUnit string

const (
	AngleRadians AngleUnit = "radians"
	AngleDegrees AngleUnit = "degrees"
)

// ParseAngleUnit validates an angle unit. An empty name means radians.
func ParseAngleUnit(s string) (AngleUnit, error) {
	switch u := AngleUnit(s); u {
	case "":
		return AngleRadians, nil
	case AngleRadians, AngleDegrees:
		return u, nil
	}
	return "", fmt.Errorf("angle unit %q: %w", s, ErrMalformedInput)
}

// Project groups images, annotations and the class list
type Project struct {
	ID          int64
	Name        string
	Description string
	Task        Task
	Classes     ClassList
	StoragePath string
	AngleUnit   AngleUnit
	CreatedAt   time.Time
}

// ProjectRepository defines the interface for project storage operations
type ProjectRepository interface {
	// Create creates a new project
	Create(ctx context.Context, p *Project) (*Project, error)

	// Get retrieves a project by ID
	Get(ctx context.Context, id int64) (*Project, error)

	// GetByName retrieves a project by its unique name
	GetByName(ctx context.Context, name string) (*Project, error)

	// List retrieves all projects
	List(ctx context.Context) ([]*Project, error)

	// UpdateClasses replaces the persisted class list
	UpdateClasses(ctx context.Context, id int64, classes ClassList) error

	// Delete removes a project with its images and annotations
	Delete(ctx context.Context, id int64) error
}

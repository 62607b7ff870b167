package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/Y04ash/Projexx/internal/models"
)

// StudentRepository provides read access to student records.
type StudentRepository interface {
	GetByID(ctx context.Context, id string) (models.Student, error)
}

type studentRepository struct {
	db *gorm.DB
}

// NewStudentRepository instantiates the repository.
func NewStudentRepository(db *gorm.DB) StudentRepository {
	return &studentRepository{db: db}
}

func (r *studentRepository) GetByID(ctx context.Context, id string) (models.Student, error) {
	var student models.Student
	if err := r.db.WithContext(ctx).First(&student, "id = ?", id).Error; err != nil {
		return models.Student{}, err
	}

	return student, nil
}

// FacultyRepository provides read access to faculty records.
type FacultyRepository interface {
	GetByID(ctx context.Context, id string) (models.Faculty, error)
}

type facultyRepository struct {
	db *gorm.DB
}

// NewFacultyRepository instantiates the repository.
func NewFacultyRepository(db *gorm.DB) FacultyRepository {
	return &facultyRepository{db: db}
}

func (r *facultyRepository) GetByID(ctx context.Context, id string) (models.Faculty, error) {
	var faculty models.Faculty
	if err := r.db.WithContext(ctx).First(&faculty, "id = ?", id).Error; err != nil {
		return models.Faculty{}, err
	}

	return faculty, nil
}

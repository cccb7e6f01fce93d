package notes

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"graphmem/pkg/errors"
)

func TestCreateEntity_Validation(t *testing.T) {
	svc := NewService(nil)

	_, err := svc.CreateEntity(context.Background(), "", "   ", "language")
	assert.Error(t, err)
	assert.True(t, errors.IsValidation(err))
}

func TestCreateNote_Validation(t *testing.T) {
	svc := NewService(nil)

	_, err := svc.CreateNote(context.Background(), "", "", nil, nil)
	assert.Error(t, err)
	assert.True(t, errors.IsValidation(err))
}

func TestCreateCategory_Validation(t *testing.T) {
	svc := NewService(nil)

	_, err := svc.CreateCategory(context.Background(), " ")
	assert.Error(t, err)
	assert.True(t, errors.IsValidation(err))
}

func TestRelateEntities_Validation(t *testing.T) {
	svc := NewService(nil)
	ctx := context.Background()

	err := svc.RelateEntities(ctx, "", "e2")
	assert.Error(t, err)
	assert.True(t, errors.IsValidation(err))

	err = svc.RelateEntities(ctx, "e1", "e1")
	assert.Error(t, err)
	assert.True(t, errors.IsValidation(err))
}

func TestAssignNoteToCategory_Validation(t *testing.T) {
	svc := NewService(nil)

	err := svc.AssignNoteToCategory(context.Background(), "", "decisions")
	assert.Error(t, err)
	assert.True(t, errors.IsValidation(err))
}

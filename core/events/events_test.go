package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBus(t *testing.T) {
	bus := NewBus()

	var got []string
	off1 := bus.On(SchoolCreated, func(p interface{}) { got = append(got, "1:"+p.(string)) })
	bus.On(SchoolCreated, func(p interface{}) { panic("boom") })
	bus.On(SchoolCreated, func(p interface{}) { got = append(got, "3:"+p.(string)) })
	assert.Equal(t, 3, bus.Count(SchoolCreated))

	bus.Emit(SchoolCreated, "a")
	assert.Equal(t, []string{"1:a", "3:a"}, got)

	off1()
	off1() // no-op
	bus.Emit(SchoolCreated, "b")
	assert.Equal(t, []string{"1:a", "3:a", "3:b"}, got)
	assert.Equal(t, 2, bus.Count(SchoolCreated))

	bus.Off(SchoolCreated)
	bus.Emit(SchoolCreated, "c")
	assert.Len(t, got, 3)
	assert.Equal(t, 0, bus.Count(SchoolCreated))

	bus.Emit("unknown", nil)
}

func TestDataChange_SchoolID(t *testing.T) {
	assert.Equal(t, "s1", DataChange{Table: "schools", Record: map[string]interface{}{"id": "s1"}}.SchoolID())
	assert.Equal(t, "s2", DataChange{Table: "classes", Record: map[string]interface{}{"id": "c1", "school_id": "s2"}}.SchoolID())
	assert.Equal(t, "", DataChange{Table: "classes"}.SchoolID())
}

package timerq

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInsertKeepsExpirationOrder(t *testing.T) {
	var q Queue
	var fired []int

	a := &Element{Expires: 30, Callback: func(arg any) { fired = append(fired, arg.(int)) }, Arg: 30}
	b := &Element{Expires: 10, Callback: func(arg any) { fired = append(fired, arg.(int)) }, Arg: 10}
	c := &Element{Expires: 20, Callback: func(arg any) { fired = append(fired, arg.(int)) }, Arg: 20}

	q.Insert(a)
	q.Insert(b)
	q.Insert(c)

	exp, ok := q.Peek()
	require.True(t, ok)
	require.EqualValues(t, 10, exp)

	q.Tick(100)
	require.Equal(t, []int{10, 20, 30}, fired)
}

func TestTickOnlyFiresDueElements(t *testing.T) {
	var q Queue
	var fired []int
	q.Insert(&Element{Expires: 5, Callback: func(arg any) { fired = append(fired, arg.(int)) }, Arg: 5})
	q.Insert(&Element{Expires: 50, Callback: func(arg any) { fired = append(fired, arg.(int)) }, Arg: 50})

	q.Tick(10)
	require.Equal(t, []int{5}, fired)

	exp, ok := q.Peek()
	require.True(t, ok)
	require.EqualValues(t, 50, exp)
}

func TestRepeatingTimerReschedulesItself(t *testing.T) {
	var q Queue
	n := 0
	e := &Element{Expires: 10, Repeat: 10, Callback: func(any) { n++ }}
	q.Insert(e)

	q.Tick(10)
	require.Equal(t, 1, n)
	exp, ok := q.Peek()
	require.True(t, ok)
	require.EqualValues(t, 20, exp)

	q.Tick(20)
	require.Equal(t, 2, n)
}

func TestRemoveUnlinksElement(t *testing.T) {
	var q Queue
	fired := false
	e := &Element{Expires: 10, Callback: func(any) { fired = true }}
	q.Insert(e)
	q.Remove(e)

	q.Tick(100)
	require.False(t, fired)
	_, ok := q.Peek()
	require.False(t, ok)
}

func TestReinsertMovesBetweenQueues(t *testing.T) {
	var q1, q2 Queue
	e := &Element{Expires: 10}
	q1.Insert(e)
	q2.Insert(e)

	_, ok := q1.Peek()
	require.False(t, ok)
	_, ok = q2.Peek()
	require.True(t, ok)
}

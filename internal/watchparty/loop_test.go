package watchparty

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEventLoopRunsTasksInOrder(t *testing.T) {
	l := newEventLoop()
	go l.run()

	var got []int
	for i := 0; i < 3; i++ {
		l.post(func() {
			got = append(got, i)
			if i == 0 {
				l.post(func() { got = append(got, 10) })
			}
		})
	}

	assert.True(t, l.flush())
	assert.True(t, l.flush())
	assert.Equal(t, []int{0, 1, 2, 10}, got)

	l.stop()
	assert.False(t, l.post(func() {}))
	assert.False(t, l.flush())
}

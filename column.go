package depot

// column is the type-erased view of one component's values inside a table.
// Every implementation keeps ticks parallel to its values.
type column interface {
	len() int
	// push appends v, which must hold the column's component type.
	push(v any, ticks ComponentTicks)
	// replace overwrites the value at row and stamps it changed.
	replace(row int, v any, tick Tick)
	// moveFrom appends row of src, a column of the same type. src is not modified.
	moveFrom(src column, row int)
	// swapRemove deletes row by moving the last row into it. When drop is set
	// the removed value's Drop method runs first.
	swapRemove(row int, drop bool)
	ticksAt(row int) *ComponentTicks
	checkTicks(now Tick)
	reserve(n int)
}

type typedColumn[T any] struct {
	data  []T
	ticks []ComponentTicks
}

var _ column = &typedColumn[struct{}]{}

func (c *typedColumn[T]) len() int {
	return len(c.data)
}

func (c *typedColumn[T]) push(v any, ticks ComponentTicks) {
	c.data = append(c.data, v.(T))
	c.ticks = append(c.ticks, ticks)
}

func (c *typedColumn[T]) replace(row int, v any, tick Tick) {
	c.data[row] = v.(T)
	c.ticks[row].Changed = tick
}

func (c *typedColumn[T]) moveFrom(src column, row int) {
	s := src.(*typedColumn[T])
	c.data = append(c.data, s.data[row])
	c.ticks = append(c.ticks, s.ticks[row])
}

func (c *typedColumn[T]) swapRemove(row int, drop bool) {
	if drop {
		dropValue(&c.data[row])
	}
	last := len(c.data) - 1
	if row != last {
		c.data[row] = c.data[last]
		c.ticks[row] = c.ticks[last]
	}
	var zero T
	c.data[last] = zero
	c.data = c.data[:last]
	c.ticks = c.ticks[:last]
}

func (c *typedColumn[T]) get(row int) *T {
	return &c.data[row]
}

func (c *typedColumn[T]) ticksAt(row int) *ComponentTicks {
	return &c.ticks[row]
}

func (c *typedColumn[T]) checkTicks(now Tick) {
	for i := range c.ticks {
		c.ticks[i].checkTicks(now)
	}
}

func (c *typedColumn[T]) reserve(n int) {
	if free := cap(c.data) - len(c.data); free < n {
		data := make([]T, len(c.data), len(c.data)+n)
		copy(data, c.data)
		c.data = data
		ticks := make([]ComponentTicks, len(c.ticks), len(c.ticks)+n)
		copy(ticks, c.ticks)
		c.ticks = ticks
	}
}

func dropValue[T any](v *T) {
	if d, ok := any(v).(Dropper); ok {
		d.Drop()
		return
	}
	if d, ok := any(*v).(Dropper); ok {
		d.Drop()
	}
}

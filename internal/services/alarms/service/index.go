package service

// timeIndex is the three-level hour -> minute -> second mapping to alarm id
// sets, keyed by UTC time-of-day. Lookup of a (h,m,s) slot is O(1); empty
// inner nodes are pruned on removal so slot counts stay meaningful
type timeIndex struct {
	hours map[int]map[int]map[int]map[string]struct{}
	size  int
}

func newTimeIndex() *timeIndex {
	return &timeIndex{hours: make(map[int]map[int]map[int]map[string]struct{})}
}

func (x *timeIndex) add(h, m, s int, id string) {
	mins, ok := x.hours[h]
	if !ok {
		mins = make(map[int]map[int]map[string]struct{})
		x.hours[h] = mins
	}
	secs, ok := mins[m]
	if !ok {
		secs = make(map[int]map[string]struct{})
		mins[m] = secs
	}
	leaf, ok := secs[s]
	if !ok {
		leaf = make(map[string]struct{})
		secs[s] = leaf
	}
	if _, dup := leaf[id]; !dup {
		leaf[id] = struct{}{}
		x.size++
	}
}

// remove deletes id from the (h,m,s) leaf and prunes empty nodes
func (x *timeIndex) remove(h, m, s int, id string) bool {
	mins, ok := x.hours[h]
	if !ok {
		return false
	}
	secs, ok := mins[m]
	if !ok {
		return false
	}
	leaf, ok := secs[s]
	if !ok {
		return false
	}
	if _, present := leaf[id]; !present {
		return false
	}
	delete(leaf, id)
	x.size--
	if len(leaf) == 0 {
		delete(secs, s)
		if len(secs) == 0 {
			delete(mins, m)
			if len(mins) == 0 {
				delete(x.hours, h)
			}
		}
	}
	return true
}

// at returns the ids indexed at exactly (h,m,s)
func (x *timeIndex) at(h, m, s int) []string {
	secs, ok := x.hours[h]
	if !ok {
		return nil
	}
	leaf, ok := secs[m][s]
	if !ok || len(leaf) == 0 {
		return nil
	}
	out := make([]string, 0, len(leaf))
	for id := range leaf {
		out = append(out, id)
	}
	return out
}

func (x *timeIndex) clear() {
	x.hours = make(map[int]map[int]map[int]map[string]struct{})
	x.size = 0
}

// slots counts non-empty (h,m,s) leaves
func (x *timeIndex) slots() int {
	n := 0
	for _, mins := range x.hours {
		for _, secs := range mins {
			n += len(secs)
		}
	}
	return n
}

// perHour counts indexed ids per UTC hour
func (x *timeIndex) perHour() [24]int {
	var out [24]int
	for h, mins := range x.hours {
		for _, secs := range mins {
			for _, leaf := range secs {
				out[h] += len(leaf)
			}
		}
	}
	return out
}

package cache

// Item 是批量写入中的一项；Options 与 Set 的可选参数相同。
type Item[T any] struct {
	Key     string
	Value   T
	Options []SetOption
}

// SetOutcome 记录单个 key 的写入结果。
type SetOutcome struct {
	Key string `json:"key"`
	OK  bool   `json:"ok"`
}

// SetManyResult 按输入顺序给出每一项的结果及汇总。
type SetManyResult struct {
	Results   []SetOutcome `json:"results"`
	Succeeded int          `json:"succeeded"`
	Failed    int          `json:"failed"`
}

// Result 是单个 key 的读取结果。
type Result[T any] struct {
	Key   string `json:"key"`
	Value T      `json:"value,omitempty"`
	Found bool   `json:"found"`
}

// GetManyResult 按输入顺序给出每个 key 的读取结果及汇总。
type GetManyResult[T any] struct {
	Results []Result[T] `json:"results"`
	Found   int         `json:"found"`
	Missing int         `json:"missing"`
}

// SetMany 依次对每一项执行 Set，失败项不会回滚已写入的项。
func (e *Engine[T]) SetMany(items []Item[T]) SetManyResult {
	outcomes := make([]SetOutcome, len(items))
	for i, item := range items {
		outcomes[i] = SetOutcome{Key: item.Key, OK: e.Set(item.Key, item.Value, item.Options...)}
	}
	return summarizeSets(outcomes)
}

// GetMany 依次对每个 key 执行 Get。
func (e *Engine[T]) GetMany(keys []string) GetManyResult[T] {
	results := make([]Result[T], len(keys))
	for i, key := range keys {
		results[i] = e.getResult(key)
	}
	return summarizeGets(results)
}

func (e *Engine[T]) getResult(key string) Result[T] {
	value, ok := e.Get(key)
	return Result[T]{Key: key, Value: value, Found: ok}
}

func summarizeSets(outcomes []SetOutcome) SetManyResult {
	res := SetManyResult{Results: outcomes}
	for _, o := range outcomes {
		if o.OK {
			res.Succeeded++
		} else {
			res.Failed++
		}
	}
	return res
}

func summarizeGets[T any](results []Result[T]) GetManyResult[T] {
	res := GetManyResult[T]{Results: results}
	for _, r := range results {
		if r.Found {
			res.Found++
		} else {
			res.Missing++
		}
	}
	return res
}

// groupByKey 把下标按 key 分组，组的顺序与组内顺序都保持首次出现的顺序。
func groupByKey(n int, keyAt func(int) string) [][]int {
	pos := make(map[string]int)
	var groups [][]int
	for i := 0; i < n; i++ {
		k := keyAt(i)
		g, ok := pos[k]
		if !ok {
			g = len(groups)
			pos[k] = g
			groups = append(groups, nil)
		}
		groups[g] = append(groups[g], i)
	}
	return groups
}

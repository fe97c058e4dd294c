package routing

import "container/heap"

// shortestPaths runs Dijkstra from src over adj (node -> neighbor ->
// weight), returning the path and total cost to every reachable node.
// Ties in cost are broken lexicographically by neighbor ID so the
// result is deterministic regardless of map iteration order, matching
// networkx's stable behavior in the original implementation closely
// enough for routing purposes.
func shortestPaths(adj map[string]map[string]float64, src string) (map[string][]string, map[string]float64) {
	const inf = 1<<63 - 1

	dist := make(map[string]float64, len(adj))
	prev := make(map[string]string, len(adj))
	visited := make(map[string]bool, len(adj))

	for node := range adj {
		dist[node] = float64(inf)
	}
	if _, ok := adj[src]; !ok {
		return map[string][]string{}, map[string]float64{}
	}
	dist[src] = 0

	pq := &priorityQueue{{node: src, dist: 0}}
	heap.Init(pq)

	for pq.Len() > 0 {
		item := heap.Pop(pq).(pqItem)
		u := item.node
		if visited[u] {
			continue
		}
		visited[u] = true

		neighbors := make([]string, 0, len(adj[u]))
		for n := range adj[u] {
			neighbors = append(neighbors, n)
		}
		sortStrings(neighbors)

		for _, v := range neighbors {
			if visited[v] {
				continue
			}
			alt := dist[u] + adj[u][v]
			if alt < dist[v] {
				dist[v] = alt
				prev[v] = u
				heap.Push(pq, pqItem{node: v, dist: alt})
			}
		}
	}

	paths := make(map[string][]string)
	costs := make(map[string]float64)
	for node, d := range dist {
		if d == float64(inf) {
			continue
		}
		paths[node] = reconstructPath(prev, src, node)
		costs[node] = d
	}
	return paths, costs
}

func reconstructPath(prev map[string]string, src, dest string) []string {
	if src == dest {
		return []string{src}
	}
	var path []string
	cur := dest
	for cur != src {
		path = append([]string{cur}, path...)
		p, ok := prev[cur]
		if !ok {
			return nil
		}
		cur = p
	}
	path = append([]string{src}, path...)
	return path
}

func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j] < s[j-1]; j-- {
			s[j], s[j-1] = s[j-1], s[j]
		}
	}
}

type pqItem struct {
	node string
	dist float64
}

type priorityQueue []pqItem

func (pq priorityQueue) Len() int { return len(pq) }
func (pq priorityQueue) Less(i, j int) bool {
	if pq[i].dist != pq[j].dist {
		return pq[i].dist < pq[j].dist
	}
	return pq[i].node < pq[j].node
}
func (pq priorityQueue) Swap(i, j int) { pq[i], pq[j] = pq[j], pq[i] }
func (pq *priorityQueue) Push(x any)   { *pq = append(*pq, x.(pqItem)) }
func (pq *priorityQueue) Pop() any {
	old := *pq
	n := len(old)
	item := old[n-1]
	*pq = old[:n-1]
	return item
}

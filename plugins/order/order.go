// Package order 提供合并顺序策略。
package order

import "github.com/Rhythmeen/merge/pkg/contract"

// Stack 栈序：每次取队尾两项，倒数第二项为 A 流，产物压回队尾。
// 输入 [x1..xn] 时最终结果等价于 x1 与 (x2 与 (... 与 xn)) 的合并。
type Stack struct{}

func (Stack) Next(q []string) (a, b string, rest []string) {
	n := len(q)
	return q[n-2], q[n-1], q[:n-2:n-2]
}

// Balanced 队列序：每次取队首两项，产物追加到队尾；合并树深度约 log2(n)。
type Balanced struct{}

func (Balanced) Next(q []string) (a, b string, rest []string) {
	rest = make([]string, len(q)-2)
	copy(rest, q[2:])
	return q[0], q[1], rest
}

var (
	_ contract.MergeOrder = Stack{}
	_ contract.MergeOrder = Balanced{}
)

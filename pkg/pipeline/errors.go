package pipeline

import "fmt"

// StageError 外部阶段执行失败
// 作为终态 error 事件反馈给客户端，不自动重试
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s 阶段失败: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// ConsistencyError 阶段产出了契约之外的更新形态
// 属于编排器与阶段之间的契约破坏，视为致命错误，不重试
type ConsistencyError struct {
	Stage  string
	Detail string
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("%s 阶段违反更新契约: %s", e.Stage, e.Detail)
}

package schema

import (
	"sort"

	"github.com/hatlonely/featurex/feature/contract"
	"github.com/hatlonely/featurex/feature/table"
	"github.com/pkg/errors"
)

// Endpoint 外部调用方可以提交的数据，按来源拆分，不包含租户字段
type Endpoint struct {
	// JSON 请求体
	JSON *contract.Contract
	// Param 路径参数
	Param *contract.Contract
	// Query 查询字符串
	Query *contract.Contract
}

// Leaves 三部分叶子字段的并集
func (e Endpoint) Leaves() []string {
	set := map[string]struct{}{}
	for _, c := range []*contract.Contract{e.JSON, e.Param, e.Query} {
		for _, leaf := range c.Leaves() {
			set[leaf] = struct{}{}
		}
	}
	leaves := make([]string, 0, len(set))
	for leaf := range set {
		leaves = append(leaves, leaf)
	}
	sort.Strings(leaves)
	return leaves
}

func (e Endpoint) Describe() map[string]any {
	out := map[string]any{}
	if e.JSON != nil {
		out["json"] = e.JSON.Describe()
	}
	if e.Param != nil {
		out["param"] = e.Param.Describe()
	}
	if e.Query != nil {
		out["query"] = e.Query.Describe()
	}
	return out
}

// Set 一个操作的三层结构
type Set struct {
	// Service 服务层的完整输入，包含租户字段
	Service *contract.Contract
	// Query 数据访问层的输入，与 Service 同构
	Query    *contract.Contract
	Endpoint Endpoint
}

func (s Set) Describe() map[string]any {
	return map[string]any{
		"service":  s.Service.Describe(),
		"query":    s.Query.Describe(),
		"endpoint": s.Endpoint.Describe(),
	}
}

// Check 校验 Set 的一致性：Endpoint 不含租户字段，且 Endpoint 叶子字段加上租户字段等于 Service 的叶子字段
func Check(config *table.Config, name string, set Set) error {
	if set.Service == nil {
		return errors.Wrapf(table.ErrConfiguration, "%s.%s: service contract is nil", config.Table(), name)
	}
	tenant := config.UserIdFieldName()

	endpoint := set.Endpoint.Leaves()
	expected := map[string]struct{}{}
	for _, leaf := range endpoint {
		if tenant != "" && leaf == tenant {
			return errors.Wrapf(table.ErrConfiguration, "%s.%s: endpoint exposes tenant field %s", config.Table(), name, tenant)
		}
		expected[leaf] = struct{}{}
	}
	if tenant != "" {
		expected[tenant] = struct{}{}
	}

	service := set.Service.Leaves()
	if tenant != "" && !contains(service, tenant) {
		return errors.Wrapf(table.ErrConfiguration, "%s.%s: service contract misses tenant field %s", config.Table(), name, tenant)
	}
	if len(service) != len(expected) {
		return errors.Wrapf(table.ErrConfiguration, "%s.%s: endpoint fields %v do not match service fields %v", config.Table(), name, endpoint, service)
	}
	for _, leaf := range service {
		if _, ok := expected[leaf]; !ok {
			return errors.Wrapf(table.ErrConfiguration, "%s.%s: endpoint fields %v do not match service fields %v", config.Table(), name, endpoint, service)
		}
	}
	return nil
}

func contains(list []string, name string) bool {
	for _, item := range list {
		if item == name {
			return true
		}
	}
	return false
}

// Schemas Build 的结果，名字到 Set 的只读映射
type Schemas struct {
	resource string
	sets     map[string]Set
	names    []string
}

func (s Schemas) Resource() string {
	return s.resource
}

func (s Schemas) Get(name string) (Set, bool) {
	set, ok := s.sets[name]
	return set, ok
}

// Names 按注册顺序返回
func (s Schemas) Names() []string {
	return append([]string(nil), s.names...)
}

func (s Schemas) Describe() map[string]any {
	out := make(map[string]any, len(s.sets))
	for name, set := range s.sets {
		out[name] = set.Describe()
	}
	return out
}

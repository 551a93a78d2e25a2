package di

import (
	"slices"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// earlyReference 二级缓存条目：对原始实例做一次 EarlyReferencer 处理
type earlyReference struct {
	once    sync.Once
	raw     any
	resolve func(any) (any, error)
	value   any
	err     error
}

func (r *earlyReference) get() (any, error) {
	r.once.Do(func() {
		r.value, r.err = r.resolve(r.raw)
	})
	return r.value, r.err
}

// resolution 一次顶层获取请求形成的调用链
type resolution struct {
	id string
	// prototypes 本调用链中正在创建的原型
	prototypes map[string]int
	// waiting 当前阻塞等待的创建锁，由 registry.mu 保护
	waiting *creationLock
	// depth 顶层入口的嵌套计数，为零表示调用链已结束
	depth atomic.Int32
}

func newResolution() *resolution {
	return &resolution{
		id:         uuid.NewString(),
		prototypes: make(map[string]int),
	}
}

func (r *resolution) enter()         { r.depth.Add(1) }
func (r *resolution) exit()          { r.depth.Add(-1) }
func (r *resolution) inFlight() bool { return r.depth.Load() > 0 }

func (r *resolution) prototypeInCreation(name string) bool {
	return r.prototypes[name] > 0
}

type creationLock struct {
	owner *resolution
	done  chan struct{}
}

type disposer interface {
	destroy() error
}

// registry 单例三级缓存、创建锁与依赖关系
type registry struct {
	mu sync.Mutex

	singletonObjects      map[string]any
	singletonFactories    map[string]*earlyReference
	earlySingletonObjects map[string]any
	registeredSingletons  []string

	inCreation           map[string]struct{}
	prototypesInCreation map[string]int
	locks                map[string]*creationLock

	dependentComponents      map[string][]string
	dependenciesForComponent map[string][]string
	containedComponents      map[string][]string

	disposables     map[string]disposer
	disposableOrder []string
	destroying      bool
}

func newRegistry() *registry {
	return &registry{
		singletonObjects:         make(map[string]any),
		singletonFactories:       make(map[string]*earlyReference),
		earlySingletonObjects:    make(map[string]any),
		inCreation:               make(map[string]struct{}),
		prototypesInCreation:     make(map[string]int),
		locks:                    make(map[string]*creationLock),
		dependentComponents:      make(map[string][]string),
		dependenciesForComponent: make(map[string][]string),
		containedComponents:      make(map[string][]string),
		disposables:              make(map[string]disposer),
	}
}

// getSingleton 依次查找一级、三级缓存；allowEarly 时解析二级缓存并提升到三级
func (r *registry) getSingleton(name string, allowEarly bool) (any, bool, error) {
	r.mu.Lock()
	if obj, ok := r.singletonObjects[name]; ok {
		r.mu.Unlock()
		return obj, true, nil
	}
	if _, creating := r.inCreation[name]; !creating {
		r.mu.Unlock()
		return nil, false, nil
	}
	if obj, ok := r.earlySingletonObjects[name]; ok {
		r.mu.Unlock()
		return obj, true, nil
	}
	ref := r.singletonFactories[name]
	r.mu.Unlock()

	if !allowEarly || ref == nil {
		return nil, false, nil
	}

	// 在锁外执行后处理器
	obj, err := ref.get()
	if err != nil {
		return nil, false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.singletonFactories[name]; ok && current == ref {
		r.earlySingletonObjects[name] = obj
		delete(r.singletonFactories, name)
	}
	if final, ok := r.singletonObjects[name]; ok {
		return final, true, nil
	}
	return obj, true, nil
}

func (r *registry) containsSingleton(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.singletonObjects[name]
	return ok
}

// lockForCreation 获取单例创建锁。已创建则直接返回实例；
// 同一调用链重入或等待形成环时返回 ErrCurrentlyInCreation
func (r *registry) lockForCreation(name string, res *resolution) (any, bool, error) {
	for {
		r.mu.Lock()
		if obj, ok := r.singletonObjects[name]; ok {
			r.mu.Unlock()
			return obj, true, nil
		}
		lock, held := r.locks[name]
		if !held {
			r.locks[name] = &creationLock{owner: res, done: make(chan struct{})}
			r.mu.Unlock()
			return nil, false, nil
		}
		if lock.owner == res || r.waitsOn(lock.owner, res) {
			r.mu.Unlock()
			return nil, false, inCreationError(name)
		}
		res.waiting = lock
		r.mu.Unlock()

		<-lock.done

		r.mu.Lock()
		res.waiting = nil
		r.mu.Unlock()
	}
}

// waitsOn owner 是否（间接）在等待 res 持有的锁，调用方持有 mu
func (r *registry) waitsOn(owner, res *resolution) bool {
	seen := make(map[*resolution]struct{})
	for cur := owner; cur != nil && cur.waiting != nil; cur = cur.waiting.owner {
		if _, ok := seen[cur]; ok {
			return false
		}
		seen[cur] = struct{}{}
		if cur.waiting.owner == res {
			return true
		}
	}
	return false
}

func (r *registry) unlockCreation(name string) {
	r.mu.Lock()
	lock, ok := r.locks[name]
	delete(r.locks, name)
	r.mu.Unlock()
	if ok {
		close(lock.done)
	}
}

func (r *registry) beginCreation(name string) {
	r.mu.Lock()
	r.inCreation[name] = struct{}{}
	r.mu.Unlock()
}

func (r *registry) endCreation(name string) {
	r.mu.Lock()
	delete(r.inCreation, name)
	r.mu.Unlock()
}

func (r *registry) isInCreation(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.inCreation[name]
	return ok
}

func (r *registry) beginPrototype(name string, res *resolution) {
	r.mu.Lock()
	r.prototypesInCreation[name]++
	r.mu.Unlock()
	res.prototypes[name]++
}

func (r *registry) endPrototype(name string, res *resolution) {
	r.mu.Lock()
	if r.prototypesInCreation[name] <= 1 {
		delete(r.prototypesInCreation, name)
	} else {
		r.prototypesInCreation[name]--
	}
	r.mu.Unlock()
	if res.prototypes[name] <= 1 {
		delete(res.prototypes, name)
	} else {
		res.prototypes[name]--
	}
}

func (r *registry) isPrototypeInCreation(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.prototypesInCreation[name] > 0
}

// addSingletonFactory 注册二级缓存；二、三级缓存互斥
func (r *registry) addSingletonFactory(name string, ref *earlyReference) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.singletonObjects[name]; ok {
		return
	}
	r.singletonFactories[name] = ref
	delete(r.earlySingletonObjects, name)
}

// earlyExposed 二级缓存是否已经被解析（即原始引用已经交给了其他组件）
func (r *registry) earlyExposed(name string) (any, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	obj, ok := r.earlySingletonObjects[name]
	return obj, ok
}

func (r *registry) addSingleton(name string, obj any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.singletonObjects[name] = obj
	delete(r.singletonFactories, name)
	delete(r.earlySingletonObjects, name)
	if !slices.Contains(r.registeredSingletons, name) {
		r.registeredSingletons = append(r.registeredSingletons, name)
	}
}

func (r *registry) removeSingleton(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.singletonObjects, name)
	delete(r.singletonFactories, name)
	delete(r.earlySingletonObjects, name)
	r.registeredSingletons = slices.DeleteFunc(r.registeredSingletons, func(s string) bool { return s == name })
}

func (r *registry) singletonNames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.registeredSingletons)
}

func (r *registry) singletonCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.singletonObjects)
}

// registerDependent 记录 dependent 依赖 name
func (r *registry) registerDependent(name, dependent string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !slices.Contains(r.dependentComponents[name], dependent) {
		r.dependentComponents[name] = append(r.dependentComponents[name], dependent)
	}
	if !slices.Contains(r.dependenciesForComponent[dependent], name) {
		r.dependenciesForComponent[dependent] = append(r.dependenciesForComponent[dependent], name)
	}
}

// isDependent dependent 是否（传递地）依赖 name
func (r *registry) isDependent(name, dependent string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.isDependentLocked(name, dependent, make(map[string]struct{}))
}

func (r *registry) isDependentLocked(name, dependent string, seen map[string]struct{}) bool {
	if _, ok := seen[name]; ok {
		return false
	}
	seen[name] = struct{}{}
	direct := r.dependentComponents[name]
	if slices.Contains(direct, dependent) {
		return true
	}
	for _, d := range direct {
		if r.isDependentLocked(d, dependent, seen) {
			return true
		}
	}
	return false
}

func (r *registry) dependents(name string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.dependentComponents[name])
}

func (r *registry) dependencies(name string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.dependenciesForComponent[name])
}

// registerContained 内部组件随外部组件一起销毁
func (r *registry) registerContained(inner, outer string) {
	r.mu.Lock()
	if !slices.Contains(r.containedComponents[outer], inner) {
		r.containedComponents[outer] = append(r.containedComponents[outer], inner)
	}
	r.mu.Unlock()
	r.registerDependent(inner, outer)
}

func (r *registry) registerDisposable(name string, d disposer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.disposables[name]; !ok {
		r.disposableOrder = append(r.disposableOrder, name)
	}
	r.disposables[name] = d
}

// takeDisposable 取出并移除可销毁条目
func (r *registry) takeDisposable(name string) disposer {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.disposables[name]
	if !ok {
		return nil
	}
	delete(r.disposables, name)
	r.disposableOrder = slices.DeleteFunc(r.disposableOrder, func(s string) bool { return s == name })
	return d
}

// takeRelations 取出并清除某组件的包含与被依赖关系
func (r *registry) takeRelations(name string) (contained, dependents []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	contained = r.containedComponents[name]
	delete(r.containedComponents, name)
	dependents = r.dependentComponents[name]
	delete(r.dependentComponents, name)
	for other, deps := range r.dependentComponents {
		r.dependentComponents[other] = slices.DeleteFunc(deps, func(s string) bool { return s == name })
		if len(r.dependentComponents[other]) == 0 {
			delete(r.dependentComponents, other)
		}
	}
	delete(r.dependenciesForComponent, name)
	return contained, dependents
}

func (r *registry) disposableNames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.disposableOrder)
}

func (r *registry) setDestroying(v bool) {
	r.mu.Lock()
	r.destroying = v
	r.mu.Unlock()
}

func (r *registry) isDestroying() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.destroying
}

// clear 销毁完成后清空所有单例状态
func (r *registry) clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.singletonObjects)
	clear(r.singletonFactories)
	clear(r.earlySingletonObjects)
	clear(r.dependentComponents)
	clear(r.dependenciesForComponent)
	clear(r.containedComponents)
	r.registeredSingletons = nil
}

package monitor

import (
	"cmp"
	"context"
	"fmt"
	"net/http"
	"strings"

	"connectrpc.com/connect"
	"github.com/google/uuid"
	"golang.org/x/exp/slices"

	"github.com/chazu/dexvm/vm"
)

// ServiceName is the fully qualified service name in procedure paths.
const ServiceName = "dexvm.monitor.v1.MonitorService"

// Procedure paths.
const (
	HeapProcedure    = "/" + ServiceName + "/Heap"
	ThreadsProcedure = "/" + ServiceName + "/Threads"
	ClassesProcedure = "/" + ServiceName + "/Classes"
	CollectProcedure = "/" + ServiceName + "/Collect"
	ProfileProcedure = "/" + ServiceName + "/Profile"
)

const defaultProfileLimit = 20

// Service implements the monitor procedures.
type Service struct {
	worker *Worker
}

// NewService creates a Service backed by worker.
func NewService(worker *Worker) *Service {
	return &Service{worker: worker}
}

// Mount registers the service's handlers on mux.
func (s *Service) Mount(mux *http.ServeMux) {
	opts := connect.WithCodec(jsonCodec{})
	mux.Handle(HeapProcedure, connect.NewUnaryHandler(HeapProcedure, s.Heap, opts))
	mux.Handle(ThreadsProcedure, connect.NewUnaryHandler(ThreadsProcedure, s.Threads, opts))
	mux.Handle(ClassesProcedure, connect.NewUnaryHandler(ClassesProcedure, s.Classes, opts))
	mux.Handle(CollectProcedure, connect.NewUnaryHandler(CollectProcedure, s.Collect, opts))
	mux.Handle(ProfileProcedure, connect.NewUnaryHandler(ProfileProcedure, s.Profile, opts))
}

func heapResponse(s vm.HeapStats) *HeapResponse {
	return &HeapResponse{
		SnapshotID: uuid.NewString(),
		Objects:    s.Objects,
		Bytes:      s.Bytes,
		Limit:      s.Limit,
		Cycles:     s.Cycles,
		Freed:      s.Freed,
		LastPause:  s.LastPause,
		LastReason: s.LastReason,
		Summary:    s.String(),
	}
}

// Heap returns the current heap statistics.
func (s *Service) Heap(
	ctx context.Context,
	req *connect.Request[HeapRequest],
) (*connect.Response[HeapResponse], error) {
	res, err := s.worker.Do(func(v *vm.VM) any {
		return heapResponse(v.Heap.Stats())
	})
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(res.(*HeapResponse)), nil
}

// Threads lists live threads in id order.
func (s *Service) Threads(
	ctx context.Context,
	req *connect.Request[ThreadsRequest],
) (*connect.Response[ThreadsResponse], error) {
	res, err := s.worker.Do(func(v *vm.VM) any {
		out := &ThreadsResponse{}
		for _, t := range v.Threads.Snapshot() {
			info := ThreadInfo{
				ID:           t.ID,
				Name:         t.Name,
				Status:       t.Status().String(),
				SuspendCount: t.SuspendCount(),
				Depth:        t.Depth(),
			}
			// Only a parked thread's stack holds still long enough to read.
			if info.SuspendCount > 0 && t.Status() == vm.ThreadSuspended {
				if frames := t.Frames(); len(frames) > 0 {
					info.Top = frames[len(frames)-1].Location().String()
				}
			}
			out.Threads = append(out.Threads, info)
		}
		slices.SortFunc(out.Threads, func(x, y ThreadInfo) int { return cmp.Compare(x.ID, y.ID) })
		return out
	})
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(res.(*ThreadsResponse)), nil
}

// Classes lists loaded classes, optionally filtered by descriptor
// prefix.
func (s *Service) Classes(
	ctx context.Context,
	req *connect.Request[ClassesRequest],
) (*connect.Response[ClassesResponse], error) {
	prefix := req.Msg.Prefix
	if prefix != "" && !strings.HasPrefix(prefix, "L") && !strings.HasPrefix(prefix, "[") {
		return nil, connect.NewError(connect.CodeInvalidArgument,
			fmt.Errorf("prefix %q is not a type descriptor prefix", prefix))
	}
	res, err := s.worker.Do(func(v *vm.VM) any {
		out := &ClassesResponse{}
		for _, c := range v.Classes.Classes() {
			if c.Primitive || !strings.HasPrefix(c.Descriptor, prefix) {
				continue
			}
			info := ClassInfo{
				Descriptor: c.Descriptor,
				Status:     c.Status().String(),
				Fields:     len(c.StaticFields) + len(c.InstanceFields),
				Methods:    len(c.DirectMethods) + len(c.VirtualMethods),
			}
			if c.Super != nil {
				info.Super = c.Super.Descriptor
			}
			out.Classes = append(out.Classes, info)
		}
		return out
	})
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(res.(*ClassesResponse)), nil
}

// Collect forces a garbage collection.
func (s *Service) Collect(
	ctx context.Context,
	req *connect.Request[CollectRequest],
) (*connect.Response[CollectResponse], error) {
	reason := req.Msg.Reason
	if reason == "" {
		reason = "monitor"
	}
	res, err := s.worker.Do(func(v *vm.VM) any {
		after := v.Collector.CollectNow(reason)
		return &CollectResponse{
			FreedObjects: after.LastFreed,
			FreedBytes:   after.LastBytes,
			Heap:         heapResponse(after),
		}
	})
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	log.Infof("collection requested over monitor (%s)", reason)
	return connect.NewResponse(res.(*CollectResponse)), nil
}

// Profile returns the most invoked methods.
func (s *Service) Profile(
	ctx context.Context,
	req *connect.Request[ProfileRequest],
) (*connect.Response[ProfileResponse], error) {
	limit := req.Msg.Limit
	if limit <= 0 {
		limit = defaultProfileLimit
	}
	res, err := s.worker.Do(func(v *vm.VM) any {
		stats := v.Profiler.Stats()
		out := &ProfileResponse{
			TotalMethods: stats.Methods,
			HotMethods:   stats.HotMethods,
			Invocations:  stats.Invocations,
		}
		for _, mc := range v.Profiler.TopMethods(limit) {
			out.Methods = append(out.Methods, MethodProfile{
				Method:      mc.Method.Key(),
				Invocations: mc.Count,
				Hot:         mc.Hot,
			})
		}
		return out
	})
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(res.(*ProfileResponse)), nil
}

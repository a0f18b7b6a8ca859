package resources

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/ff-monheim/ams-console/pkg/client"
	"github.com/ff-monheim/ams-console/pkg/types"
)

// fakeAPI is an in-memory AMS API.
type fakeAPI struct {
	mu        sync.Mutex
	nextID    int
	courses   []types.Course
	locations []types.Location
	ranks     []types.Rank

	listErr   error
	createErr error
	deleteErr error

	lists   map[string]int
	creates map[string]int
	updates map[string]int
	deletes map[string]int

	lastLocation types.CreateLocationRequest
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		lists:   map[string]int{},
		creates: map[string]int{},
		updates: map[string]int{},
		deletes: map[string]int{},
	}
}

func (f *fakeAPI) id() string {
	f.nextID++
	return fmt.Sprintf("id-%d", f.nextID)
}

func (f *fakeAPI) count(m map[string]int, resource string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return m[resource]
}

func notFound() error {
	return &client.APIError{StatusCode: http.StatusNotFound, Problem: types.ProblemDetail{Status: http.StatusNotFound, Title: "Not Found"}}
}

func (f *fakeAPI) ListCourses(context.Context) ([]types.Course, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists[Courses]++
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]types.Course(nil), f.courses...), nil
}

func (f *fakeAPI) GetCourse(_ context.Context, id string) (*types.Course, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.courses {
		if c.ID == id {
			return &c, nil
		}
	}
	return nil, notFound()
}

func (f *fakeAPI) CreateCourse(_ context.Context, req types.CreateCourseRequest) (*types.Course, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates[Courses]++
	if f.createErr != nil {
		return nil, f.createErr
	}
	c := types.Course{ID: f.id(), Name: req.Name, Abbreviation: req.Abbreviation}
	f.courses = append(f.courses, c)
	return &c, nil
}

func (f *fakeAPI) UpdateCourse(_ context.Context, id string, req types.UpdateCourseRequest) (*types.Course, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates[Courses]++
	for i, c := range f.courses {
		if c.ID == id {
			f.courses[i] = types.Course{ID: id, Name: req.Name, Abbreviation: req.Abbreviation}
			return &f.courses[i], nil
		}
	}
	return nil, notFound()
}

func (f *fakeAPI) DeleteCourse(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes[Courses]++
	if f.deleteErr != nil {
		return f.deleteErr
	}
	for i, c := range f.courses {
		if c.ID == id {
			f.courses = append(f.courses[:i], f.courses[i+1:]...)
			return nil
		}
	}
	return notFound()
}

func (f *fakeAPI) ListLocations(context.Context) ([]types.Location, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists[Locations]++
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]types.Location(nil), f.locations...), nil
}

func (f *fakeAPI) GetLocation(_ context.Context, id string) (*types.Location, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, l := range f.locations {
		if l.ID == id {
			return &l, nil
		}
	}
	return nil, notFound()
}

func (f *fakeAPI) CreateLocation(_ context.Context, req types.CreateLocationRequest) (*types.Location, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates[Locations]++
	f.lastLocation = req
	if f.createErr != nil {
		return nil, f.createErr
	}
	l := types.Location{ID: f.id(), Name: req.Name, Address: req.Address}
	f.locations = append(f.locations, l)
	return &l, nil
}

func (f *fakeAPI) UpdateLocation(_ context.Context, id string, req types.UpdateLocationRequest) (*types.Location, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates[Locations]++
	for i, l := range f.locations {
		if l.ID == id {
			f.locations[i] = types.Location{ID: id, Name: req.Name, Address: req.Address}
			return &f.locations[i], nil
		}
	}
	return nil, notFound()
}

func (f *fakeAPI) DeleteLocation(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes[Locations]++
	for i, l := range f.locations {
		if l.ID == id {
			f.locations = append(f.locations[:i], f.locations[i+1:]...)
			return nil
		}
	}
	return notFound()
}

func (f *fakeAPI) ListRanks(context.Context) ([]types.Rank, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists[Ranks]++
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]types.Rank(nil), f.ranks...), nil
}

func (f *fakeAPI) GetRank(_ context.Context, id string) (*types.Rank, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.ranks {
		if r.ID == id {
			return &r, nil
		}
	}
	return nil, notFound()
}

func (f *fakeAPI) CreateRank(_ context.Context, req types.CreateRankRequest) (*types.Rank, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates[Ranks]++
	r := types.Rank{ID: f.id(), Name: req.Name, Abbreviation: req.Abbreviation}
	f.ranks = append(f.ranks, r)
	return &r, nil
}

func (f *fakeAPI) UpdateRank(_ context.Context, id string, req types.UpdateRankRequest) (*types.Rank, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates[Ranks]++
	for i, r := range f.ranks {
		if r.ID == id {
			f.ranks[i] = types.Rank{ID: id, Name: req.Name, Abbreviation: req.Abbreviation}
			return &f.ranks[i], nil
		}
	}
	return nil, notFound()
}

func (f *fakeAPI) DeleteRank(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes[Ranks]++
	for i, r := range f.ranks {
		if r.ID == id {
			f.ranks = append(f.ranks[:i], f.ranks[i+1:]...)
			return nil
		}
	}
	return notFound()
}

// Package resource shapes models into API output.
//
// A Transformer decides exactly which fields a model exposes:
//
//	func fileResource(f models.File) resource.Map {
//	    return resource.Map{"id": f.FileUniqueID, "name": f.FileName}
//	}
//
//	response.Success(w, resource.One(file, fileResource))
//	response.Paginated(w, resource.Many(files, fileResource), p)
package resource

// Map is the output of a Transformer.
type Map = map[string]any

// Transformer converts one model into a Map.
type Transformer[T any] func(T) Map

// One transforms a single model.
func One[T any](v T, fn Transformer[T]) Map {
	return fn(v)
}

// Many transforms every item. The result is never nil, so an empty
// listing encodes as [] rather than null.
func Many[T any](items []T, fn Transformer[T]) []Map {
	out := make([]Map, 0, len(items))
	for _, it := range items {
		out = append(out, fn(it))
	}
	return out
}

// Merge copies extra into m, overwriting existing keys, and returns m.
func Merge(m Map, extra Map) Map {
	for k, v := range extra {
		m[k] = v
	}
	return m
}

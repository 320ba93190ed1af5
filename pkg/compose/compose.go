// Package compose reads and rewrites Docker Compose files as a
// structured model. The image reference of a service is mutated on
// the parsed document and the document serialized back; the rest of
// the file (environment, ports, unrecognized keys) passes through
// untouched. Serialized text is never edited with string matching.
package compose

import (
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/Jeffail/gabs"
	"github.com/ghodss/yaml"
	"github.com/pkg/errors"

	"github.com/tugboat-ci/tugboat/pkg/image"
)

var (
	ErrNoServices      = errors.New("compose file has no services section")
	ErrServiceNotFound = errors.New("service not found in compose file")
	ErrNoImage         = errors.New("service has no image field")
)

// File is a parsed compose document.
type File struct {
	doc *gabs.Container
}

// Parse interprets YAML bytes as a compose document.
func Parse(b []byte) (*File, error) {
	jsonBytes, err := yaml.YAMLToJSON(b)
	if err != nil {
		return nil, errors.Wrap(err, "parsing compose YAML")
	}
	doc, err := gabs.ParseJSON(jsonBytes)
	if err != nil {
		return nil, errors.Wrap(err, "parsing compose document")
	}
	if !doc.Exists("services") {
		return nil, ErrNoServices
	}
	return &File{doc: doc}, nil
}

// Load reads and parses a compose file from disk.
func Load(path string) (*File, error) {
	b, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading compose file %s", path)
	}
	return Parse(b)
}

// Bytes serializes the document back to YAML.
func (f *File) Bytes() ([]byte, error) {
	return yaml.JSONToYAML(f.doc.Bytes())
}

// Save writes the document to path, atomically (write to a temporary
// file in the same directory, then rename).
func (f *File) Save(path string) error {
	b, err := f.Bytes()
	if err != nil {
		return err
	}
	tmp, err := ioutil.TempFile(filepath.Dir(path), ".compose-*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// ServiceNames returns the services declared in the document.
func (f *File) ServiceNames() []string {
	services, err := f.doc.S("services").ChildrenMap()
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(services))
	for name := range services {
		names = append(names, name)
	}
	return names
}

// ServiceImage returns the image reference a service runs.
func (f *File) ServiceImage(service string) (image.Ref, error) {
	svc := f.doc.Search("services", service)
	if svc == nil {
		return image.Ref{}, errors.Wrapf(ErrServiceNotFound, "%q", service)
	}
	img, ok := svc.Search("image").Data().(string)
	if !ok || img == "" {
		return image.Ref{}, errors.Wrapf(ErrNoImage, "%q", service)
	}
	return image.ParseRef(img)
}

// SetServiceImage points a service at another image reference.
func (f *File) SetServiceImage(service string, ref image.Ref) error {
	svc := f.doc.Search("services", service)
	if svc == nil {
		return errors.Wrapf(ErrServiceNotFound, "%q", service)
	}
	if _, err := f.doc.Set(ref.String(), "services", service, "image"); err != nil {
		return errors.Wrapf(err, "setting image for %q", service)
	}
	return nil
}

// ServicesUsing returns the services whose image is in the given
// repository, regardless of tag.
func (f *File) ServicesUsing(name image.Name) []string {
	var using []string
	for _, svc := range f.ServiceNames() {
		ref, err := f.ServiceImage(svc)
		if err != nil {
			continue
		}
		if ref.CanonicalName() == name.CanonicalName() {
			using = append(using, svc)
		}
	}
	return using
}

package apps

import (
	"context"
	"fmt"
	"os"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
)

// Source returns the raw registry document. Implementations re-read their
// backing store on every call.
type Source interface {
	Read(ctx context.Context) ([]byte, error)
}

// FileSource reads the document from a local file.
type FileSource struct {
	Path string
}

func (s *FileSource) Read(context.Context) ([]byte, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("unable to read application config: %w", err)
	}
	return data, nil
}

// ConfigMapSource reads the document from one key of a ConfigMap.
type ConfigMapSource struct {
	Client    kubernetes.Interface
	Namespace string
	Name      string
	Key       string
}

func (s *ConfigMapSource) Read(ctx context.Context) ([]byte, error) {
	cm, err := s.Client.CoreV1().ConfigMaps(s.Namespace).Get(ctx, s.Name, metav1.GetOptions{})
	if err != nil {
		return nil, fmt.Errorf("unable to get configmap %s/%s: %w", s.Namespace, s.Name, err)
	}

	if data, ok := cm.Data[s.Key]; ok {
		return []byte(data), nil
	}
	if data, ok := cm.BinaryData[s.Key]; ok {
		return data, nil
	}
	return nil, &ConfigMalformedError{Err: fmt.Errorf("configmap %s/%s has no key %q", s.Namespace, s.Name, s.Key)}
}

package orchestration

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	k8sretry "k8s.io/client-go/util/retry"

	"github.com/mrz1836/cutover/internal/constants"
	"github.com/mrz1836/cutover/internal/domain"
	cerrors "github.com/mrz1836/cutover/internal/errors"
)

// KubernetesClient drives blue/green services on Kubernetes.
//
// Each environment is a Deployment. The routing object is a ConfigMap holding
// one integer per environment under weight.blue and weight.green, read by the
// mesh or ingress controller that splits traffic. Weight changes replace the
// ConfigMap data in a single Update guarded by its resourceVersion.
type KubernetesClient struct {
	client kubernetes.Interface
	locate Locator
}

// NewKubernetesClient returns a client using clientset and locate.
func NewKubernetesClient(clientset kubernetes.Interface, locate Locator) *KubernetesClient {
	return &KubernetesClient{client: clientset, locate: locate}
}

// NewClientset builds a clientset. An explicit kubeconfig path wins; otherwise
// in-cluster configuration is preferred, falling back to $KUBECONFIG and then
// ~/.kube/config when running locally.
func NewClientset(kubeconfig string) (kubernetes.Interface, error) {
	cfg, err := restConfig(kubeconfig)
	if err != nil {
		return nil, err
	}
	clientset, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("create kubernetes client: %w", err)
	}
	return clientset, nil
}

func restConfig(kubeconfig string) (*rest.Config, error) {
	if path := strings.TrimSpace(kubeconfig); path != "" {
		cfg, err := clientcmd.BuildConfigFromFlags("", path)
		if err != nil {
			return nil, cerrors.Mark(fmt.Errorf("load kubeconfig %s: %w", path, err), cerrors.ErrValidation)
		}
		return cfg, nil
	}

	cfg, err := rest.InClusterConfig()
	if err == nil {
		return cfg, nil
	}

	path := strings.TrimSpace(os.Getenv("KUBECONFIG"))
	if path == "" {
		path = clientcmd.RecommendedHomeFile
		if _, statErr := os.Stat(path); statErr != nil {
			return nil, cerrors.Mark(fmt.Errorf("create in-cluster config: %w", err), cerrors.ErrValidation)
		}
	}
	cfg, err = clientcmd.BuildConfigFromFlags("", path)
	if err != nil {
		return nil, cerrors.Mark(fmt.Errorf("create kubeconfig client: %w", err), cerrors.ErrValidation)
	}
	return cfg, nil
}

// Apply creates the environment's Deployment or updates its image, replica
// count and revision.
func (k *KubernetesClient) Apply(ctx context.Context, spec domain.WorkloadSpec) error {
	place, err := k.locate(spec.ServiceID)
	if err != nil {
		return err
	}
	if spec.Namespace == "" {
		spec.Namespace = place.Namespace
	}
	if spec.Name == "" {
		spec.Name = place.Workload(spec.Env)
	}

	desired := buildDeployment(spec)
	deployments := k.client.AppsV1().Deployments(spec.Namespace)

	err = k8sretry.RetryOnConflict(k8sretry.DefaultRetry, func() error {
		current, getErr := deployments.Get(ctx, spec.Name, metav1.GetOptions{})
		if apierrors.IsNotFound(getErr) {
			_, createErr := deployments.Create(ctx, desired, metav1.CreateOptions{})
			return createErr
		}
		if getErr != nil {
			return getErr
		}

		current.Spec.Replicas = desired.Spec.Replicas
		current.Spec.Template = desired.Spec.Template
		if current.Annotations == nil {
			current.Annotations = map[string]string{}
		}
		current.Annotations[constants.AnnotationRevision] = spec.Revision
		_, updateErr := deployments.Update(ctx, current, metav1.UpdateOptions{})
		return updateErr
	})
	return classify(fmt.Sprintf("apply deployment %s/%s", spec.Namespace, spec.Name), err)
}

// GetStatus reports whether every desired replica of the environment's
// Deployment is updated, ready and available. A missing Deployment is not ready.
func (k *KubernetesClient) GetStatus(ctx context.Context, serviceID string, env constants.EnvID) (domain.WorkloadStatus, error) {
	place, err := k.locate(serviceID)
	if err != nil {
		return domain.WorkloadStatus{}, err
	}
	name := place.Workload(env)

	d, err := k.client.AppsV1().Deployments(place.Namespace).Get(ctx, name, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		return domain.WorkloadStatus{Name: name, Message: "deployment not found"}, nil
	}
	if err != nil {
		return domain.WorkloadStatus{}, classify("get deployment "+place.Namespace+"/"+name, err)
	}
	return deploymentStatus(d), nil
}

// GetRouting reads the routing ConfigMap.
func (k *KubernetesClient) GetRouting(ctx context.Context, serviceID string) (domain.RoutingState, error) {
	place, err := k.locate(serviceID)
	if err != nil {
		return domain.RoutingState{}, err
	}

	cm, err := k.client.CoreV1().ConfigMaps(place.Namespace).Get(ctx, place.RoutingObject, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		return domain.RoutingState{}, fmt.Errorf("configmap %s/%s: %w", place.Namespace, place.RoutingObject, cerrors.ErrRoutingObjectMissing)
	}
	if err != nil {
		return domain.RoutingState{}, classify("get routing "+place.Namespace+"/"+place.RoutingObject, err)
	}
	return routingState(serviceID, cm)
}

// PatchWeights replaces both weight keys in one Update. The Update carries
// the resourceVersion that was read, so a concurrent writer surfaces as
// errors.ErrConflict instead of being overwritten.
func (k *KubernetesClient) PatchWeights(ctx context.Context, serviceID string, weights domain.Weights) (domain.RoutingState, error) {
	place, err := k.locate(serviceID)
	if err != nil {
		return domain.RoutingState{}, err
	}
	configMaps := k.client.CoreV1().ConfigMaps(place.Namespace)
	op := "patch routing " + place.Namespace + "/" + place.RoutingObject

	cm, err := configMaps.Get(ctx, place.RoutingObject, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		created, createErr := configMaps.Create(ctx, &corev1.ConfigMap{
			ObjectMeta: metav1.ObjectMeta{
				Name:      place.RoutingObject,
				Namespace: place.Namespace,
				Labels:    map[string]string{constants.LabelService: serviceID},
			},
			Data: routingData(nil, weights),
		}, metav1.CreateOptions{})
		if createErr != nil {
			return domain.RoutingState{}, classify(op, createErr)
		}
		return routingState(serviceID, created)
	}
	if err != nil {
		return domain.RoutingState{}, classify(op, err)
	}

	next := cm.DeepCopy()
	next.Data = routingData(cm.Data, weights)
	updated, err := configMaps.Update(ctx, next, metav1.UpdateOptions{})
	if err != nil {
		return domain.RoutingState{}, classify(op, err)
	}
	return routingState(serviceID, updated)
}

func buildDeployment(spec domain.WorkloadSpec) *appsv1.Deployment {
	replicas := spec.Replicas
	if replicas < 1 {
		replicas = 1
	}
	selector := map[string]string{
		constants.LabelService:     spec.ServiceID,
		constants.LabelEnvironment: spec.Env.String(),
	}
	labels := map[string]string{
		constants.LabelService:     spec.ServiceID,
		constants.LabelEnvironment: spec.Env.String(),
		"app.kubernetes.io/name":   spec.ServiceID,
	}
	annotations := map[string]string{constants.AnnotationRevision: spec.Revision}

	return &appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{
			Name:        spec.Name,
			Namespace:   spec.Namespace,
			Labels:      labels,
			Annotations: annotations,
		},
		Spec: appsv1.DeploymentSpec{
			Replicas: &replicas,
			Selector: &metav1.LabelSelector{MatchLabels: selector},
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{
					Labels:      labels,
					Annotations: annotations,
				},
				Spec: corev1.PodSpec{
					Containers: []corev1.Container{{
						Name:  spec.ServiceID,
						Image: spec.Image,
						Env: []corev1.EnvVar{
							{Name: "CUTOVER_ENVIRONMENT", Value: spec.Env.String()},
							{Name: "CUTOVER_REVISION", Value: spec.Revision},
						},
					}},
				},
			},
		},
	}
}

func deploymentStatus(d *appsv1.Deployment) domain.WorkloadStatus {
	desired := int32(1)
	if d.Spec.Replicas != nil {
		desired = *d.Spec.Replicas
	}
	st := d.Status
	ready := st.ObservedGeneration >= d.Generation &&
		st.UpdatedReplicas >= desired &&
		st.ReadyReplicas >= desired &&
		st.AvailableReplicas >= desired &&
		st.Replicas == st.UpdatedReplicas

	return domain.WorkloadStatus{
		Name:            d.Name,
		DesiredReplicas: desired,
		ReadyReplicas:   st.ReadyReplicas,
		UpdatedReplicas: st.UpdatedReplicas,
		Ready:           ready,
		Message:         fmt.Sprintf("%d/%d replicas ready, %d updated", st.ReadyReplicas, desired, st.UpdatedReplicas),
	}
}

func routingData(existing map[string]string, weights domain.Weights) map[string]string {
	data := make(map[string]string, len(existing)+2)
	for k, v := range existing {
		data[k] = v
	}
	for _, env := range constants.AllEnvs() {
		data[constants.RoutingWeightKeyPrefix+env.String()] = strconv.Itoa(weights[env])
	}
	return data
}

func routingState(serviceID string, cm *corev1.ConfigMap) (domain.RoutingState, error) {
	weights := domain.Weights{}
	for _, env := range constants.AllEnvs() {
		key := constants.RoutingWeightKeyPrefix + env.String()
		raw, ok := cm.Data[key]
		if !ok {
			return domain.RoutingState{}, fmt.Errorf("configmap %s missing key %s: %w", cm.Name, key, cerrors.ErrAmbiguousRouting)
		}
		w, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return domain.RoutingState{}, fmt.Errorf("configmap %s key %s=%q: %w", cm.Name, key, raw, cerrors.ErrAmbiguousRouting)
		}
		weights[env] = w
	}
	return domain.RoutingState{
		ServiceID: serviceID,
		Weights:   weights,
		Revision:  cm.ResourceVersion,
	}, nil
}

// classify maps API errors onto failure classes. Transport failures and
// server-side unavailability are infrastructure errors and may be retried.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	wrapped := fmt.Errorf("%s: %w", op, err)

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return wrapped
	}
	switch {
	case apierrors.IsConflict(err):
		return cerrors.Mark(wrapped, cerrors.ErrConflict)
	case apierrors.IsServerTimeout(err), apierrors.IsTimeout(err),
		apierrors.IsTooManyRequests(err), apierrors.IsServiceUnavailable(err),
		apierrors.IsInternalError(err), apierrors.IsUnexpectedServerError(err):
		return cerrors.Mark(wrapped, cerrors.ErrInfrastructure)
	}

	var status apierrors.APIStatus
	if !errors.As(err, &status) {
		return cerrors.Mark(wrapped, cerrors.ErrInfrastructure)
	}
	return wrapped
}

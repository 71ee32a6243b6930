package vulkan

import (
	"github.com/vkngwrapper/cmdtrack/cmdutils/state"
	"github.com/vkngwrapper/core/v2/core1_0"
)

// Image is implemented by tracked resources backed by a VkImage. Subresources are indexed with
// mip levels varying fastest: subresource = mip + layer*MipLevelCount().
type Image interface {
	state.Resource

	VulkanImage() core1_0.Image
	MipLevelCount() int
	ArrayLayerCount() int
	AspectMask() core1_0.ImageAspectFlags
}

// SubresourceRange addresses a single subresource of image, or all of them for state.AllSubresources
func SubresourceRange(image Image, subresource int) core1_0.ImageSubresourceRange {
	if subresource == state.AllSubresources {
		return core1_0.ImageSubresourceRange{
			AspectMask:     image.AspectMask(),
			BaseMipLevel:   0,
			LevelCount:     image.MipLevelCount(),
			BaseArrayLayer: 0,
			LayerCount:     image.ArrayLayerCount(),
		}
	}

	mips := image.MipLevelCount()
	return core1_0.ImageSubresourceRange{
		AspectMask:     image.AspectMask(),
		BaseMipLevel:   subresource % mips,
		LevelCount:     1,
		BaseArrayLayer: subresource / mips,
		LayerCount:     1,
	}
}

var shaderReadStates = state.ResourceStateNonPixelShaderResource | state.ResourceStatePixelShaderResource

// ImageLayout is the layout an image is kept in while in resourceState
func ImageLayout(resourceState state.ResourceStates) core1_0.ImageLayout {
	switch resourceState {
	case state.ResourceStateRenderTarget:
		return core1_0.ImageLayoutColorAttachmentOptimal
	case state.ResourceStateDepthWrite:
		return core1_0.ImageLayoutDepthStencilAttachmentOptimal
	case state.ResourceStateCopyDest, state.ResourceStateResolveDest:
		return core1_0.ImageLayoutTransferDstOptimal
	case state.ResourceStateCopySource, state.ResourceStateResolveSource:
		return core1_0.ImageLayoutTransferSrcOptimal
	case state.ResourceStateTBD, state.ResourceStateCorrupt:
		return core1_0.ImageLayoutUndefined
	}

	if resourceState&state.ResourceStateDepthRead != 0 && resourceState.IsReadOnly() {
		return core1_0.ImageLayoutDepthStencilReadOnlyOptimal
	}

	if resourceState != 0 && resourceState&^shaderReadStates == 0 {
		return core1_0.ImageLayoutShaderReadOnlyOptimal
	}

	return core1_0.ImageLayoutGeneral
}

var accessMapping = []struct {
	state  state.ResourceStates
	access core1_0.AccessFlags
}{
	{state.ResourceStateVertexAndConstantBuffer, core1_0.AccessVertexAttributeRead | core1_0.AccessUniformRead},
	{state.ResourceStateIndexBuffer, core1_0.AccessIndexRead},
	{state.ResourceStateRenderTarget, core1_0.AccessColorAttachmentRead | core1_0.AccessColorAttachmentWrite},
	{state.ResourceStateUnorderedAccess, core1_0.AccessShaderRead | core1_0.AccessShaderWrite},
	{state.ResourceStateDepthWrite, core1_0.AccessDepthStencilAttachmentRead | core1_0.AccessDepthStencilAttachmentWrite},
	{state.ResourceStateDepthRead, core1_0.AccessDepthStencilAttachmentRead},
	{state.ResourceStateNonPixelShaderResource, core1_0.AccessShaderRead},
	{state.ResourceStatePixelShaderResource, core1_0.AccessShaderRead},
	{state.ResourceStateStreamOut, core1_0.AccessShaderWrite},
	{state.ResourceStateIndirectArgument, core1_0.AccessIndirectCommandRead},
	{state.ResourceStateCopyDest, core1_0.AccessTransferWrite},
	{state.ResourceStateCopySource, core1_0.AccessTransferRead},
	{state.ResourceStateResolveDest, core1_0.AccessTransferWrite},
	{state.ResourceStateResolveSource, core1_0.AccessTransferRead},
}

// AccessFlags is the set of accesses made to a resource in resourceState
func AccessFlags(resourceState state.ResourceStates) core1_0.AccessFlags {
	if !resourceState.IsKnown() {
		return 0
	}

	if resourceState == state.ResourceStateCommon {
		return core1_0.AccessMemoryRead | core1_0.AccessMemoryWrite
	}

	var access core1_0.AccessFlags
	for _, mapping := range accessMapping {
		if resourceState&mapping.state != 0 {
			access |= mapping.access
		}
	}
	return access
}
